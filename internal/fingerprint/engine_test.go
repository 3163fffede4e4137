package fingerprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/electrumtest"
	"github.com/nao1215/electrumscan/internal/model"
)

type call struct {
	host   string
	method string
	params []any
}

// scriptedCaller answers by method; unknown hosts are unreachable.
type scriptedCaller struct {
	reachable map[string]bool
	answers   map[string]func() (*electrum.Response, error)

	mu    sync.Mutex
	calls []call
}

func (s *scriptedCaller) Call(_ context.Context, host string, _ int, method string, params ...any) (*electrum.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{host: host, method: method, params: params})
	s.mu.Unlock()

	if !s.reachable[host] {
		return nil, &electrum.CallError{Phase: electrum.PhaseDial, Outcome: electrum.OutcomeRefused, Err: errors.New("refused")}
	}
	if answer, ok := s.answers[method]; ok {
		return answer()
	}
	return okResponse("pong")()
}

func okResponse(result any) func() (*electrum.Response, error) {
	return func() (*electrum.Response, error) {
		return &electrum.Response{
			Value:   map[string]any{"id": 0, "result": result},
			Latency: 25 * time.Millisecond,
		}, nil
	}
}

func TestScripthash(t *testing.T) {
	t.Parallel()

	t.Run("matches the documented example", func(t *testing.T) {
		t.Parallel()

		got, err := Scripthash(AddressP2PKH, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161"
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("handles segwit and taproot", func(t *testing.T) {
		t.Parallel()

		for _, addr := range []string{AddressP2WPKH, AddressP2TR} {
			got, err := Scripthash(addr, &chaincfg.MainNetParams)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", addr, err)
			}
			if !model.IsFingerprintHex(got) {
				t.Errorf("%s: expected 64 hex characters, got %q", addr, got)
			}
		}
	})

	t.Run("rejects an invalid address", func(t *testing.T) {
		t.Parallel()

		if _, err := Scripthash("invalid!!!", &chaincfg.MainNetParams); err == nil {
			t.Error("expected error")
		}
	})
}

func TestEngineProbe(t *testing.T) {
	t.Parallel()

	t.Run("runs six probes each on its own call", func(t *testing.T) {
		t.Parallel()

		caller := &scriptedCaller{reachable: map[string]bool{"good": true}}
		engine, err := New(caller)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec := engine.Probe(context.Background(), "good", 50002)
		if len(caller.calls) != 6 {
			t.Fatalf("expected 6 calls, got %d", len(caller.calls))
		}
		wantMethods := []string{
			electrum.MethodVersion, electrum.MethodBanner, electrum.MethodPing,
			electrum.MethodAddressHistory, electrum.MethodAddressHistory, electrum.MethodAddressHistory,
		}
		for i, m := range wantMethods {
			if caller.calls[i].method != m {
				t.Errorf("call %d: expected %s, got %s", i, m, caller.calls[i].method)
			}
		}
		if caller.calls[5].params[0] != AddressP2TR {
			t.Errorf("expected taproot address, got %v", caller.calls[5].params)
		}

		if rec.Protocol != model.TransportTLS {
			t.Errorf("expected tls protocol, got %s", rec.Protocol)
		}
		for _, p := range model.Probes {
			r := rec.Result(p)
			if !r.OK() || r.LatencyMs == nil || *r.LatencyMs != 25 || r.ResponseHash == nil {
				t.Errorf("%s: unexpected result %+v", p, r)
			}
		}
		if !rec.SupportsP2PKH || !rec.SupportsP2WPKH || !rec.SupportsP2TR {
			t.Errorf("expected all script types supported, got %+v", rec)
		}
	})

	t.Run("records failures per probe and accepts error members", func(t *testing.T) {
		t.Parallel()

		caller := &scriptedCaller{
			reachable: map[string]bool{"odd": true},
			answers: map[string]func() (*electrum.Response, error){
				electrum.MethodBanner: func() (*electrum.Response, error) {
					return &electrum.Response{Raw: "garbage", Latency: 3 * time.Millisecond},
						&electrum.CallError{Phase: electrum.PhaseDecode, Outcome: electrum.OutcomeMalformed, Err: errors.New("bad")}
				},
				electrum.MethodAddressHistory: func() (*electrum.Response, error) {
					return &electrum.Response{
							Value:   map[string]any{"id": 0, "error": map[string]any{"code": 1, "message": "unsupported"}},
							Latency: 4 * time.Millisecond,
						}, &electrum.CallError{
							Phase: electrum.PhaseRPC, Outcome: electrum.OutcomeRPCError,
							Err: &electrum.RPCError{Code: 1, Message: "unsupported"},
						}
				},
				electrum.MethodPing: func() (*electrum.Response, error) {
					return nil, &electrum.CallError{Phase: electrum.PhaseRead, Outcome: electrum.OutcomeTimeout, Err: errors.New("i/o timeout")}
				},
			},
		}
		engine, err := New(caller)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec := engine.Probe(context.Background(), "odd", 50001)
		if rec.Protocol != model.TransportPlain {
			t.Errorf("expected plain protocol, got %s", rec.Protocol)
		}

		banner := rec.Result(model.ProbeBanner)
		if banner.Error != "invalid_json" || banner.LatencyMs == nil || banner.ResponseHash != nil {
			t.Errorf("unexpected banner result %+v", banner)
		}
		ping := rec.Result(model.ProbePing)
		if ping.Error != "timeout" || ping.LatencyMs != nil {
			t.Errorf("unexpected ping result %+v", ping)
		}
		history := rec.Result(model.ProbeHistory)
		if history.Error != "ok" || history.ResponseHash == nil || history.LatencyMs == nil {
			t.Errorf("unexpected history result %+v", history)
		}
		if !rec.SupportsP2PKH || !rec.SupportsP2WPKH || !rec.SupportsP2TR {
			t.Errorf("expected error-member replies to count as supported, got %+v", rec)
		}
	})

	t.Run("unreachable host still yields a record", func(t *testing.T) {
		t.Parallel()

		engine, err := New(&scriptedCaller{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rec := engine.Probe(context.Background(), "down", 50002)
		for _, p := range model.Probes {
			r := rec.Result(p)
			if r.Error != "connection_failed" || r.LatencyMs != nil || r.ResponseHash != nil {
				t.Errorf("%s: unexpected result %+v", p, r)
			}
		}
	})

	t.Run("scripthash mode queries by scripthash", func(t *testing.T) {
		t.Parallel()

		caller := &scriptedCaller{reachable: map[string]bool{"good": true}}
		engine, err := New(caller, WithHistoryMode(HistoryByScripthash))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		engine.Probe(context.Background(), "good", 50002)

		c := caller.calls[3]
		if c.method != electrum.MethodScripthashHistory {
			t.Fatalf("expected scripthash method, got %s", c.method)
		}
		if c.params[0] != "8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161" {
			t.Errorf("unexpected scripthash %v", c.params[0])
		}
	})

	t.Run("rejects an unknown history mode", func(t *testing.T) {
		t.Parallel()

		if _, err := New(&scriptedCaller{}, WithHistoryMode("utxo")); !errors.Is(err, ErrUnknownHistoryMode) {
			t.Errorf("expected ErrUnknownHistoryMode, got %v", err)
		}
	})
}

func TestEngineFingerprint(t *testing.T) {
	t.Parallel()

	caller := &scriptedCaller{reachable: map[string]bool{"a": true, "b": true}}
	engine, err := New(caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	peers := []model.ValidatedPeer{{Host: "a", Port: 50002}, {Host: "down", Port: 50002}, {Host: "b", Port: 50001}}
	records, err := engine.Fingerprint(context.Background(), peers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected a record per peer, got %d", len(records))
	}
	for i, p := range peers {
		if records[i].Host != p.Host {
			t.Errorf("index %d: expected %s, got %s", i, p.Host, records[i].Host)
		}
	}

	a := records[0].Result(model.ProbeBanner).ResponseHash
	b := records[2].Result(model.ProbeBanner).ResponseHash
	if a == nil || b == nil || *a != *b {
		t.Error("expected identical banners to hash identically")
	}
}

func TestEngineProbeErrorMemberOverWire(t *testing.T) {
	t.Parallel()

	cert := electrumtest.Certificate(t, "electrum.test", "electrum.test")
	srv := electrumtest.NewTLSServer(t, cert, func(req electrum.Request) string {
		switch req.Method {
		case electrum.MethodAddressHistory:
			return electrumtest.Error(req.ID, -32601, "unknown method")
		default:
			return electrumtest.Result(req.ID, "pong")
		}
	})
	client := electrum.NewClient(
		electrum.WithTimeout(2*time.Second),
		electrum.WithFallbackPort(electrumtest.ClosedPort(t)),
	)

	engine, err := New(client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := engine.Probe(context.Background(), srv.Host, srv.Port)

	for _, p := range []model.Probe{model.ProbeHistory, model.ProbeHistoryP2WPKH, model.ProbeHistoryP2TR} {
		r := rec.Result(p)
		if r.Error != model.ProbeOK || r.ResponseHash == nil || r.LatencyMs == nil {
			t.Errorf("%s: unexpected result %+v", p, r)
		}
	}
	if !rec.SupportsP2PKH || !rec.SupportsP2WPKH || !rec.SupportsP2TR {
		t.Errorf("expected all script types supported, got %+v", rec)
	}
}
