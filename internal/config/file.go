package config

import "time"

// File is the structure of the .electrumscan settings file. Zero values
// leave the corresponding Config field untouched.
type File struct {
	Seed            string        `yaml:"seed,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	TLSTimeout      time.Duration `yaml:"tls_timeout,omitempty"`
	Concurrency     int           `yaml:"concurrency,omitempty"`
	TLSConcurrency  int           `yaml:"tls_concurrency,omitempty"`
	MaxDepth        *int          `yaml:"max_depth,omitempty"`
	ClientName      string        `yaml:"client_name,omitempty"`
	ProtocolVersion string        `yaml:"protocol_version,omitempty"`
	HistoryQuery    string        `yaml:"history_query,omitempty"`
	Proxy           string        `yaml:"proxy,omitempty"`
	Rate            float64       `yaml:"rate,omitempty"`
	OutputDir       string        `yaml:"output_dir,omitempty"`
	TopN            int           `yaml:"top,omitempty"`
	DBDir           string        `yaml:"db_dir,omitempty"`

	// Exclude lists hosts that are never contacted, e.g. known honeypots or
	// servers whose operators asked not to be scanned.
	Exclude []string `yaml:"exclude,omitempty"`
}

// Apply copies the values set in f onto c. Exclude entries are appended.
func (f *File) Apply(c *Config) {
	if f == nil {
		return
	}
	if f.Seed != "" {
		c.Seed = f.Seed
	}
	if f.Timeout != 0 {
		c.Timeout = f.Timeout
	}
	if f.TLSTimeout != 0 {
		c.TLSTimeout = f.TLSTimeout
	}
	if f.Concurrency != 0 {
		c.Concurrency = f.Concurrency
	}
	if f.TLSConcurrency != 0 {
		c.TLSConcurrency = f.TLSConcurrency
	}
	if f.MaxDepth != nil {
		c.MaxDepth = *f.MaxDepth
	}
	if f.ClientName != "" {
		c.ClientName = f.ClientName
	}
	if f.ProtocolVersion != "" {
		c.ProtocolVersion = f.ProtocolVersion
	}
	if f.HistoryQuery != "" {
		c.HistoryQuery = f.HistoryQuery
	}
	if f.Proxy != "" {
		c.Proxy = f.Proxy
	}
	if f.Rate != 0 {
		c.Rate = f.Rate
	}
	if f.OutputDir != "" {
		c.OutputDir = f.OutputDir
	}
	if f.TopN != 0 {
		c.TopN = f.TopN
	}
	if f.DBDir != "" {
		c.DBDir = f.DBDir
	}
	c.Exclude = append(c.Exclude, f.Exclude...)
}
