package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/electrumscan/internal/analysis"
	"github.com/nao1215/electrumscan/internal/artifact"
	"github.com/nao1215/electrumscan/internal/config"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/electrumtest"
	"github.com/nao1215/electrumscan/internal/fingerprint"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/nao1215/electrumscan/internal/validator"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeServer answers every method the stages use. Its peer list names
// itself on its own TLS port.
func fakeServer(t *testing.T) *electrumtest.Server {
	t.Helper()

	var port atomic.Int64
	srv := electrumtest.NewTLSServer(t, electrumtest.Certificate(t, "localhost", "localhost"),
		func(req electrum.Request) string {
			switch req.Method {
			case electrum.MethodPeersSubscribe:
				return electrumtest.Result(req.ID, []any{
					[]any{"127.0.0.1", "127.0.0.1", []any{"v1.4", "s" + strconv.FormatInt(port.Load(), 10), "t"}},
				})
			case electrum.MethodVersion:
				return electrumtest.Result(req.ID, []any{"ElectrumX 1.16.0", "1.4"})
			case electrum.MethodBanner:
				return electrumtest.Result(req.ID, "Welcome to a test server")
			case electrum.MethodPing:
				return electrumtest.Result(req.ID, nil)
			default:
				return electrumtest.Result(req.ID, []any{})
			}
		})
	port.Store(int64(srv.Port))
	return srv
}

func TestToolkitAllFlow(t *testing.T) {
	t.Parallel()

	srv := fakeServer(t)

	cfg := config.NewConfig()
	cfg.Seed = model.JoinHostPort(srv.Host, srv.Port)
	cfg.Timeout = 2 * time.Second
	cfg.TLSTimeout = 2 * time.Second
	cfg.OutputDir = t.TempDir()

	tk, err := NewToolkit(cfg, WithToolkitLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewToolkit: %v", err)
	}
	p, err := tk.Pipeline(FlowAll.Stages(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}

	run := model.NewScanRun(cfg.Seed)
	if err := p.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	t.Run("every stage ran", func(t *testing.T) {
		if !slices.Equal(run.PerformedStages, FlowAll.Stages()) {
			t.Errorf("performed %v", run.PerformedStages)
		}
	})

	t.Run("records flow through the stages", func(t *testing.T) {
		if len(run.Peers) != 1 || len(run.Validated) != 1 || len(run.Certificates) != 1 || len(run.Fingerprints) != 1 {
			t.Fatalf("unexpected counts: peers=%d validated=%d certs=%d fingerprints=%d",
				len(run.Peers), len(run.Validated), len(run.Certificates), len(run.Fingerprints))
		}
		if run.Validated[0].Protocol != model.TransportTLS {
			t.Errorf("expected TLS, got %q", run.Validated[0].Protocol)
		}
		if model.Deref(run.Certificates[0].SubjectCN) != "localhost" {
			t.Errorf("unexpected subject %v", run.Certificates[0].SubjectCN)
		}
		if !run.Fingerprints[0].SupportsP2TR {
			t.Error("expected taproot support")
		}
	})

	t.Run("score reflects the certificate", func(t *testing.T) {
		if len(run.Scores) != 1 {
			t.Fatalf("expected one score, got %d", len(run.Scores))
		}
		if !slices.Contains(run.Scores[0].Signals, analysis.SignalSuspiciousSubject) {
			t.Errorf("expected %s in %v", analysis.SignalSuspiciousSubject, run.Scores[0].Signals)
		}
		if slices.Contains(run.Scores[0].Signals, analysis.SignalNoCertificate) {
			t.Errorf("unexpected %s", analysis.SignalNoCertificate)
		}
	})

	t.Run("every artifact is written", func(t *testing.T) {
		for _, name := range []string{
			artifact.PeersFile, artifact.OnlinePeersFile, artifact.CertificatesFile,
			artifact.FingerprintsFile, artifact.FingerprintClusterFile, artifact.IssuerClusterFile,
			artifact.SubjectClusterFile, artifact.BehaviorClusterFile, artifact.ScoresFile,
		} {
			if _, err := os.Stat(tk.Store.Path(name)); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}
	})
}

// probeCaller answers every probe successfully.
type probeCaller struct{}

func (probeCaller) Call(_ context.Context, _ string, _ int, method string, _ ...any) (*electrum.Response, error) {
	return &electrum.Response{
		Value:   map[string]any{"id": 0, "result": method},
		Latency: 50 * time.Millisecond,
	}, nil
}

func TestAnalysisFlowFromArtifacts(t *testing.T) {
	t.Parallel()

	store := Store{Dir: t.TempDir()}
	online := []model.ValidatedPeer{
		{Host: "a.example", Port: 50002, Protocol: model.TransportTLS},
		{Host: "b.example", Port: 50001, Protocol: model.TransportPlain},
		{Host: "excluded.example", Port: 50002, Protocol: model.TransportTLS},
	}
	certs := []model.CertificateRecord{
		{Host: "a.example", Port: 50002, FingerprintSHA256: strings.Repeat("ab", 32), SubjectCN: model.StringPtr("a.example"), IssuerCN: model.StringPtr("R3")},
	}
	if err := artifact.Save(store.Path(artifact.OnlinePeersFile), online); err != nil {
		t.Fatal(err)
	}
	if err := artifact.Save(store.Path(artifact.CertificatesFile), certs); err != nil {
		t.Fatal(err)
	}

	engine, err := fingerprint.New(probeCaller{}, fingerprint.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	p := New(WithLogger(quietLogger()))
	p.AddSteps(
		NewFingerprintStep(engine, model.NewHostSet([]string{"EXCLUDED.example"}), store),
		NewClusterStep(store, quietLogger()),
		NewScoreStep(store),
	)

	run := model.NewScanRun("")
	if err := p.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(run.Fingerprints) != 2 {
		t.Fatalf("expected excluded host to be skipped, got %d fingerprints", len(run.Fingerprints))
	}
	if len(run.Scores) != 2 {
		t.Fatalf("expected a score per fingerprinted host, got %d", len(run.Scores))
	}
	for _, s := range run.Scores {
		hasNoCert := slices.Contains(s.Signals, analysis.SignalNoCertificate)
		if s.Host == "b.example" && !hasNoCert {
			t.Errorf("b.example has no certificate, signals %v", s.Signals)
		}
		if s.Host == "a.example" && hasNoCert {
			t.Errorf("a.example has a certificate, signals %v", s.Signals)
		}
	}

	scores, err := artifact.Load[model.ScoreRecord](store.Path(artifact.ScoresFile))
	if err != nil {
		t.Fatalf("load scores: %v", err)
	}
	if len(scores) != 2 {
		t.Errorf("expected 2 persisted scores, got %d", len(scores))
	}
}

func TestStepsMissingInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		step Step
	}{
		{name: "cluster needs certificates", step: NewClusterStep(Store{Dir: t.TempDir()}, quietLogger())},
		{name: "score needs fingerprints", step: NewScoreStep(Store{Dir: t.TempDir()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.step.Do(context.Background(), model.NewScanRun(""))
			if !errors.Is(err, artifact.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestClusterStepWithoutFingerprints(t *testing.T) {
	t.Parallel()

	store := Store{Dir: t.TempDir()}
	run := model.NewScanRun("")
	run.Certificates = []model.CertificateRecord{
		{Host: "a.example", Port: 50002, FingerprintSHA256: strings.Repeat("cd", 32)},
		{Host: "b.example", Port: 50002, FingerprintSHA256: strings.Repeat("cd", 32)},
	}

	if err := NewClusterStep(store, quietLogger()).Do(context.Background(), run); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(run.CertClusters.ByFingerprint) != 1 || run.CertClusters.ByFingerprint[0].Count != 2 {
		t.Errorf("unexpected clusters %+v", run.CertClusters.ByFingerprint)
	}
	if run.BehaviorClusters != nil {
		t.Error("expected no behavior clusters without fingerprints")
	}
	if _, err := os.Stat(store.Path(artifact.BehaviorClusterFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no behavior cluster artifact, got %v", err)
	}
}

func TestCorruptInput(t *testing.T) {
	t.Parallel()

	store := Store{Dir: t.TempDir()}
	if err := os.WriteFile(store.Path(artifact.CertificatesFile), []byte(`{"not":"an array"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	err := NewClusterStep(store, quietLogger()).Do(context.Background(), model.NewScanRun(""))
	if !errors.Is(err, artifact.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestToolkitStep(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.OutputDir = t.TempDir()
	tk, err := NewToolkit(cfg, WithToolkitLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewToolkit: %v", err)
	}

	if tk.SeedHost != "electrum3.bluewallet.io" || tk.SeedPort != 50002 {
		t.Errorf("unexpected seed %s:%d", tk.SeedHost, tk.SeedPort)
	}
	for _, stage := range FlowAll.Stages() {
		step, err := tk.Step(stage)
		if err != nil {
			t.Fatalf("Step(%q): %v", stage, err)
		}
		if step.Name() != stage {
			t.Errorf("Step(%q).Name() = %q", stage, step.Name())
		}
	}
	if _, err := tk.Step("report"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestNewToolkitRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Proxy = "http://127.0.0.1:3128"
	if _, err := NewToolkit(cfg); !errors.Is(err, config.ErrInvalidProxy) {
		t.Errorf("expected ErrInvalidProxy, got %v", err)
	}
}

// recordingDialer fails every dial and remembers the hosts it was asked for.
type recordingDialer struct {
	mu    sync.Mutex
	hosts []string
}

func (d *recordingDialer) Dial(_ context.Context, host string, _ int) (*electrum.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosts = append(d.hosts, host)
	return nil, electrum.ErrConnectionFailed
}

func TestValidateStepSkipsOnionPeers(t *testing.T) {
	t.Parallel()

	const onion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"
	peers := []model.PeerCandidate{
		{Host: "a.example", SSLPort: model.IntPtr(50002)},
		{Host: onion, SSLPort: model.IntPtr(50002)},
	}

	for _, skip := range []bool{true, false} {
		t.Run("skip="+strconv.FormatBool(skip), func(t *testing.T) {
			t.Parallel()

			store := Store{Dir: t.TempDir()}
			if err := artifact.Save(store.Path(artifact.PeersFile), peers); err != nil {
				t.Fatal(err)
			}

			d := &recordingDialer{}
			step := NewValidateStep(validator.New(d, validator.WithLogger(quietLogger())), nil, store)
			if skip {
				step.SkipOnionPeers(quietLogger())
			}
			if err := step.Do(context.Background(), model.NewScanRun("")); err != nil {
				t.Fatalf("Do: %v", err)
			}

			d.mu.Lock()
			defer d.mu.Unlock()
			dialedOnion := slices.Contains(d.hosts, onion)
			if dialedOnion == skip {
				t.Errorf("skip=%v but dialed hosts = %v", skip, d.hosts)
			}
			if !slices.Contains(d.hosts, "a.example") {
				t.Errorf("expected a.example to be dialed, got %v", d.hosts)
			}
		})
	}
}
