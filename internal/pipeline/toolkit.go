package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/certs"
	"github.com/nao1215/electrumscan/internal/config"
	"github.com/nao1215/electrumscan/internal/crawler"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/fingerprint"
	"github.com/nao1215/electrumscan/internal/metrics"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/nao1215/electrumscan/internal/validator"
)

// Flow names a sequence of stages.
type Flow string

// Supported flows.
const (
	FlowNetwork  Flow = "network"
	FlowAnalysis Flow = "analysis"
	FlowAll      Flow = "all"
)

var (
	// ErrUnknownFlow is returned by ParseFlow for an unsupported name.
	ErrUnknownFlow = errors.New("unknown flow: must be network, analysis or all")
	// ErrUnknownStage is returned by Toolkit.Step for an unsupported name.
	ErrUnknownStage = errors.New("unknown stage")
)

// ParseFlow validates a flow name.
func ParseFlow(name string) (Flow, error) {
	switch f := Flow(name); f {
	case FlowNetwork, FlowAnalysis, FlowAll:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, name)
	}
}

// Stages returns the stage names of the flow in execution order.
func (f Flow) Stages() []string {
	network := []string{StageDiscover, StageValidate, StageCerts}
	analysis := []string{StageFingerprint, StageCluster, StageScore}
	switch f {
	case FlowNetwork:
		return network
	case FlowAnalysis:
		return analysis
	case FlowAll:
		return append(network, analysis...)
	default:
		return nil
	}
}

// Toolkit holds the stage components configured for one scan.
type Toolkit struct {
	SeedHost string
	SeedPort int

	Spider      *crawler.Spider
	Validator   *validator.Validator
	Certs       *certs.Analyzer
	Fingerprint *fingerprint.Engine

	Store   Store
	Exclude model.HostSet

	// ProxyConfigured is true when a proxy or custom dialer is in use.
	// Without one, onion peers are not validated.
	ProxyConfigured bool

	logger *slog.Logger
}

type toolkitOptions struct {
	logger  *slog.Logger
	metrics *metrics.Registry
	dialer  electrum.Dialer
}

// ToolkitOption configures NewToolkit.
type ToolkitOption func(*toolkitOptions)

// WithToolkitLogger sets the logger handed to every component.
func WithToolkitLogger(logger *slog.Logger) ToolkitOption {
	return func(o *toolkitOptions) {
		o.logger = logger
	}
}

// WithToolkitMetrics makes every client report to reg, labelled by stage.
func WithToolkitMetrics(reg *metrics.Registry) ToolkitOption {
	return func(o *toolkitOptions) {
		o.metrics = reg
	}
}

// WithToolkitDialer replaces the network dialer of every client. It takes
// precedence over cfg.Proxy.
func WithToolkitDialer(d electrum.Dialer) ToolkitOption {
	return func(o *toolkitOptions) {
		o.dialer = d
	}
}

// NewToolkit builds every stage component from cfg. Each stage gets its own
// client, so metrics are labelled by stage, and its own admission gate.
func NewToolkit(cfg *config.Config, opts ...ToolkitOption) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &toolkitOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	if o.dialer == nil && cfg.Proxy != "" {
		d, err := electrum.NewProxyDialer(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		o.dialer = d
	}

	newClient := func(stage string, timeout time.Duration) *electrum.Client {
		return electrum.NewClient(
			electrum.WithTimeout(timeout),
			electrum.WithDialer(o.dialer),
			electrum.WithObserver(o.metrics.ForStage(stage)),
			electrum.WithLogger(o.logger),
		)
	}
	newGate := func(limit int) *admission.Gate {
		return admission.New(limit, admission.WithRate(cfg.Rate))
	}

	seedHost, seedPort, err := cfg.SeedHostPort()
	if err != nil {
		return nil, err
	}

	engine, err := fingerprint.New(newClient(StageFingerprint, cfg.Timeout),
		fingerprint.WithGate(newGate(cfg.Concurrency)),
		fingerprint.WithClientIdentity(cfg.ClientName, cfg.ProtocolVersion),
		fingerprint.WithHistoryMode(fingerprint.HistoryMode(cfg.HistoryQuery)),
		fingerprint.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Toolkit{
		SeedHost: seedHost,
		SeedPort: seedPort,
		Spider: crawler.NewSpider(newClient(StageDiscover, cfg.Timeout),
			crawler.WithMaxDepth(cfg.MaxDepth),
			crawler.WithGate(newGate(cfg.Concurrency)),
			crawler.WithExclude(cfg.Exclude),
			crawler.WithLogger(o.logger),
		),
		Validator: validator.New(newClient(StageValidate, cfg.Timeout),
			validator.WithGate(newGate(cfg.Concurrency)),
			validator.WithClientIdentity(cfg.ClientName, cfg.ProtocolVersion),
			validator.WithLogger(o.logger),
		),
		Certs: certs.New(newClient(StageCerts, cfg.TLSTimeout),
			certs.WithGate(newGate(cfg.TLSConcurrency)),
			certs.WithLogger(o.logger),
		),
		Fingerprint: engine,
		Store:       Store{Dir: cfg.OutputDir},
		Exclude:     model.NewHostSet(cfg.Exclude),

		ProxyConfigured: o.dialer != nil,
		logger:          o.logger,
	}, nil
}

// Step returns the configured step for a stage name.
func (tk *Toolkit) Step(stage string) (Step, error) {
	switch stage {
	case StageDiscover:
		return NewDiscoverStep(tk.Spider, tk.SeedHost, tk.SeedPort, tk.Store), nil
	case StageValidate:
		step := NewValidateStep(tk.Validator, tk.Exclude, tk.Store)
		if !tk.ProxyConfigured {
			step.SkipOnionPeers(tk.logger)
		}
		return step, nil
	case StageCerts:
		return NewCertsStep(tk.Certs, tk.Exclude, tk.Store), nil
	case StageFingerprint:
		return NewFingerprintStep(tk.Fingerprint, tk.Exclude, tk.Store), nil
	case StageCluster:
		return NewClusterStep(tk.Store, tk.logger), nil
	case StageScore:
		return NewScoreStep(tk.Store), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

// Pipeline builds a pipeline running the given stages in order.
func (tk *Toolkit) Pipeline(stages []string, opts ...Option) (*Pipeline, error) {
	p := New(append([]Option{WithLogger(tk.logger)}, opts...)...)
	for _, stage := range stages {
		step, err := tk.Step(stage)
		if err != nil {
			return nil, err
		}
		p.AddStep(step)
	}
	return p, nil
}
