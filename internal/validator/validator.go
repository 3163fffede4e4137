// Package validator confirms that discovered peers are alive Electrum servers.
//
// A peer is valid when, on one connection, it answers server.version and then
// server.banner with a JSON line each. Peers that fail to connect or to answer
// either call are dropped without a record.
package validator

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
)

// Defaults for the version handshake.
const (
	DefaultClientName      = "Electrum 4.4.5"
	DefaultProtocolVersion = "1.4"
)

// Dialer opens a connection with TLS-first fallback. *electrum.Client satisfies it.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (*electrum.Conn, error)
}

// Validator runs the two-call handshake against candidate peers.
type Validator struct {
	dialer          Dialer
	gate            *admission.Gate
	clientName      string
	protocolVersion string
	logger          *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithGate sets the admission gate.
func WithGate(g *admission.Gate) Option {
	return func(v *Validator) {
		if g != nil {
			v.gate = g
		}
	}
}

// WithClientIdentity sets the client name and protocol version sent in server.version.
func WithClientIdentity(name, protocolVersion string) Option {
	return func(v *Validator) {
		if name != "" {
			v.clientName = name
		}
		if protocolVersion != "" {
			v.protocolVersion = protocolVersion
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a Validator.
func New(dialer Dialer, opts ...Option) *Validator {
	v := &Validator{
		dialer:          dialer,
		gate:            admission.New(200),
		clientName:      DefaultClientName,
		protocolVersion: DefaultProtocolVersion,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks every peer concurrently and returns those that completed
// the handshake, in input order.
func (v *Validator) Validate(ctx context.Context, peers []model.PeerCandidate) ([]model.ValidatedPeer, error) {
	v.logger.Info("validating peers", "count", len(peers), "concurrency", v.gate.Limit())

	online, err := admission.Map(ctx, v.gate.Limit(), peers, v.Check)

	v.logger.Info("validation finished", "online", len(online), "offline", len(peers)-len(online))
	return online, err
}

// Check runs the handshake against one peer. The gate is held for the whole
// exchange.
func (v *Validator) Check(ctx context.Context, peer model.PeerCandidate) (model.ValidatedPeer, bool) {
	if err := v.gate.Acquire(ctx); err != nil {
		return model.ValidatedPeer{}, false
	}
	defer v.gate.Release()

	port := peer.DialPort()
	start := time.Now()

	conn, err := v.dialer.Dial(ctx, peer.Host, port)
	if err != nil {
		v.logger.Debug("peer unreachable", "host", peer.Host, "port", port, "error", electrum.Sentinel(err))
		return model.ValidatedPeer{}, false
	}
	defer conn.Close()

	version, err := v.call(ctx, conn, electrum.MethodVersion, v.clientName, v.protocolVersion)
	if err != nil {
		v.logger.Debug("version call failed", "host", peer.Host, "port", port, "error", electrum.Sentinel(err))
		return model.ValidatedPeer{}, false
	}
	banner, err := v.call(ctx, conn, electrum.MethodBanner)
	if err != nil {
		v.logger.Debug("banner call failed", "host", peer.Host, "port", port, "error", electrum.Sentinel(err))
		return model.ValidatedPeer{}, false
	}

	return model.ValidatedPeer{
		Host:       peer.Host,
		Port:       port,
		Protocol:   conn.Transport(),
		LatencyMs:  roundMillis(time.Since(start)),
		VersionRaw: version.Raw,
		BannerRaw:  banner.Raw,
	}, true
}

// call performs one exchange. A JSON error member still proves the server
// speaks the protocol, so only transport and decode failures count.
func (v *Validator) call(ctx context.Context, conn *electrum.Conn, method string, params ...any) (*electrum.Response, error) {
	resp, err := conn.Call(ctx, method, params...)
	if err != nil && electrum.OutcomeOf(err) == electrum.OutcomeRPCError && resp != nil {
		return resp, nil
	}
	return resp, err
}

// roundMillis converts d to milliseconds rounded to two decimals.
func roundMillis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
