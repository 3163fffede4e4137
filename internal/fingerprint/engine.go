// Package fingerprint runs a fixed battery of protocol probes against each
// server and records how it answers.
//
// Every probe uses its own connection and timeout, so one slow or failing
// probe cannot affect the others. A record is produced for every host,
// whatever the probes return.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
)

// Fixed history probe inputs, one per script type.
const (
	AddressP2PKH  = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	AddressP2WPKH = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kg3g4ty"
	AddressP2TR   = "bc1p5cyxnuxmeuwuvkwfem96l0hax0u4qxgmfxj0gd0k9u3x3jz7xk7q4lk7t7"
)

// HistoryMode selects how history probes address the server.
type HistoryMode string

const (
	// HistoryByAddress uses blockchain.address.get_history.
	HistoryByAddress HistoryMode = "address"
	// HistoryByScripthash uses blockchain.scripthash.get_history.
	HistoryByScripthash HistoryMode = "scripthash"
)

// ErrUnknownHistoryMode is returned for an unsupported HistoryMode.
var ErrUnknownHistoryMode = errors.New("unknown history mode")

// Caller performs one exchange on a fresh connection. *electrum.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, host string, port int, method string, params ...any) (*electrum.Response, error)
}

type probeSpec struct {
	probe  model.Probe
	method string
	params []any
}

// Engine fingerprints servers.
type Engine struct {
	caller          Caller
	gate            *admission.Gate
	clientName      string
	protocolVersion string
	historyMode     HistoryMode
	logger          *slog.Logger

	battery []probeSpec
}

// Option configures an Engine.
type Option func(*Engine)

// WithGate sets the admission gate. Each probe holds one slot.
func WithGate(g *admission.Gate) Option {
	return func(e *Engine) {
		if g != nil {
			e.gate = g
		}
	}
}

// WithClientIdentity sets the client name and protocol version of the version probe.
func WithClientIdentity(name, protocolVersion string) Option {
	return func(e *Engine) {
		if name != "" {
			e.clientName = name
		}
		if protocolVersion != "" {
			e.protocolVersion = protocolVersion
		}
	}
}

// WithHistoryMode selects address or scripthash history probes.
func WithHistoryMode(mode HistoryMode) Option {
	return func(e *Engine) {
		e.historyMode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(caller Caller, opts ...Option) (*Engine, error) {
	e := &Engine{
		caller:          caller,
		gate:            admission.New(200),
		clientName:      "Electrum 4.4.5",
		protocolVersion: "1.4",
		historyMode:     HistoryByAddress,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	battery, err := e.buildBattery()
	if err != nil {
		return nil, err
	}
	e.battery = battery
	return e, nil
}

func (e *Engine) buildBattery() ([]probeSpec, error) {
	battery := []probeSpec{
		{probe: model.ProbeVersion, method: electrum.MethodVersion, params: []any{e.clientName, e.protocolVersion}},
		{probe: model.ProbeBanner, method: electrum.MethodBanner},
		{probe: model.ProbePing, method: electrum.MethodPing},
	}

	history := []struct {
		probe   model.Probe
		address string
	}{
		{model.ProbeHistory, AddressP2PKH},
		{model.ProbeHistoryP2WPKH, AddressP2WPKH},
		{model.ProbeHistoryP2TR, AddressP2TR},
	}
	for _, h := range history {
		switch e.historyMode {
		case HistoryByAddress:
			battery = append(battery, probeSpec{probe: h.probe, method: electrum.MethodAddressHistory, params: []any{h.address}})
		case HistoryByScripthash:
			sh, err := Scripthash(h.address, &chaincfg.MainNetParams)
			if err != nil {
				return nil, err
			}
			battery = append(battery, probeSpec{probe: h.probe, method: electrum.MethodScripthashHistory, params: []any{sh}})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownHistoryMode, e.historyMode)
		}
	}
	return battery, nil
}

// Fingerprint probes every peer concurrently and returns one record per
// peer, in input order.
func (e *Engine) Fingerprint(ctx context.Context, peers []model.ValidatedPeer) ([]model.FingerprintRecord, error) {
	e.logger.Info("fingerprinting servers", "count", len(peers), "history_mode", e.historyMode)

	records, err := admission.Map(ctx, e.gate.Limit(), peers,
		func(ctx context.Context, p model.ValidatedPeer) (model.FingerprintRecord, bool) {
			return e.Probe(ctx, p.Host, p.Port), true
		})

	e.logger.Info("fingerprinting finished", "records", len(records))
	return records, err
}

// Probe runs the battery sequentially against host:port.
func (e *Engine) Probe(ctx context.Context, host string, port int) model.FingerprintRecord {
	rec := model.FingerprintRecord{
		Host:     host,
		Port:     port,
		Protocol: model.TransportForPort(port),
		Results:  make(map[model.Probe]model.ProbeResult, len(e.battery)),
	}
	for _, spec := range e.battery {
		rec.Results[spec.probe] = e.run(ctx, host, port, spec)
	}

	rec.SupportsP2PKH = rec.Result(model.ProbeHistory).OK()
	rec.SupportsP2WPKH = rec.Result(model.ProbeHistoryP2WPKH).OK()
	rec.SupportsP2TR = rec.Result(model.ProbeHistoryP2TR).OK()

	e.logger.Debug("server fingerprinted",
		"host", host, "port", port,
		"banner", rec.Result(model.ProbeBanner).Error,
		"p2wpkh", rec.SupportsP2WPKH, "p2tr", rec.SupportsP2TR)
	return rec
}

func (e *Engine) run(ctx context.Context, host string, port int, spec probeSpec) model.ProbeResult {
	if err := e.gate.Acquire(ctx); err != nil {
		return model.ProbeResult{Error: err.Error()}
	}
	defer e.gate.Release()

	resp, err := e.caller.Call(ctx, host, port, spec.method, spec.params...)
	// A decodable reply counts as answered even when it carries an error member.
	if err != nil && resp != nil && electrum.OutcomeOf(err) == electrum.OutcomeRPCError {
		e.logger.Debug("probe answered with error member",
			"host", host, "port", port, "method", spec.method, "response", err.Error())
		err = nil
	}
	result := model.ProbeResult{Error: electrum.Sentinel(err)}
	if resp != nil {
		latency := millis(resp.Latency)
		result.LatencyMs = &latency
		result.ResponseHash = resp.Hash()
	}
	return result
}

func millis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*1000) / 1000
}
