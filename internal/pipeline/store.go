package pipeline

import (
	"fmt"

	"github.com/nao1215/electrumscan/internal/artifact"
)

// Store is the directory stage artifacts are read from and written to.
type Store struct {
	Dir string
}

// Path returns the location of the named artifact.
func (s Store) Path(name string) string {
	return artifact.Path(s.Dir, name)
}

// loadInput fills *dst from the named artifact unless an earlier step of
// this run already produced it.
func loadInput[T artifact.Record](s Store, name string, dst *[]T) error {
	if *dst != nil {
		return nil
	}
	records, err := artifact.Load[T](s.Path(name))
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	*dst = records
	return nil
}

func saveOutput[T any](s Store, name string, records []T) error {
	if err := artifact.Save(s.Path(name), records); err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	return nil
}

func nonNil[T any](records []T) []T {
	if records == nil {
		return []T{}
	}
	return records
}
