package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStageObserver(t *testing.T) {
	t.Parallel()

	r := New()
	obs := r.ForStage("validate")
	obs.ObserveDial(model.TransportTLS, electrum.OutcomeSuccess)
	obs.ObserveDial(model.TransportPlain, electrum.OutcomeRefused)
	obs.ObserveCall(electrum.MethodVersion, electrum.OutcomeSuccess, 30*time.Millisecond)
	obs.ObserveCall(electrum.MethodBanner, electrum.OutcomeTimeout, 0)

	t.Run("dials are labelled by transport and outcome", func(t *testing.T) {
		t.Parallel()

		got := testutil.ToFloat64(r.dials.WithLabelValues("validate", "plain", "refused"))
		if got != 1 {
			t.Errorf("expected 1 refused plain dial, got %v", got)
		}
	})

	t.Run("calls are labelled by method and outcome", func(t *testing.T) {
		t.Parallel()

		got := testutil.ToFloat64(r.calls.WithLabelValues("validate", electrum.MethodBanner, "timeout"))
		if got != 1 {
			t.Errorf("expected 1 timed out banner call, got %v", got)
		}
	})

	t.Run("zero latency is not observed", func(t *testing.T) {
		t.Parallel()

		if n := testutil.CollectAndCount(r.latency); n != 1 {
			t.Errorf("expected one latency series, got %d", n)
		}
	})
}

func TestRecordStage(t *testing.T) {
	t.Parallel()

	r := New()
	r.RecordStage("discover", 42, 1500*time.Millisecond)

	if got := testutil.ToFloat64(r.records.WithLabelValues("discover")); got != 42 {
		t.Errorf("expected 42 records, got %v", got)
	}
	if got := testutil.ToFloat64(r.duration.WithLabelValues("discover")); got != 1.5 {
		t.Errorf("expected 1.5s, got %v", got)
	}
}

func TestNilRegistry(t *testing.T) {
	t.Parallel()

	var r *Registry
	if obs := r.ForStage("certs"); obs != nil {
		t.Errorf("expected nil observer, got %T", obs)
	}
	r.RecordStage("certs", 1, time.Second)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.ForStage("fingerprint").ObserveCall(electrum.MethodPing, electrum.OutcomeSuccess, 5*time.Millisecond)
	r.RecordStage("fingerprint", 3, time.Second)

	path := filepath.Join(t.TempDir(), "electrumscan.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // test temp file
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{
		`electrumscan_calls_total{method="server.ping",outcome="success",stage="fingerprint"} 1`,
		`electrumscan_stage_records{stage="fingerprint"} 3`,
		`electrumscan_call_latency_seconds_bucket`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}
