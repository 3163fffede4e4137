package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
)

// fakeNetwork answers server.peers.subscribe from a static graph.
type fakeNetwork struct {
	peers map[string]string // host -> raw result JSON
	delay time.Duration

	mu      sync.Mutex
	queried []string
	current atomic.Int32
	peak    atomic.Int32
}

func (f *fakeNetwork) Call(_ context.Context, host string, port int, method string, _ ...any) (*electrum.Response, error) {
	if method != electrum.MethodPeersSubscribe {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.queried = append(f.queried, fmt.Sprintf("%s:%d", host, port))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	raw, ok := f.peers[host]
	if !ok {
		return nil, &electrum.CallError{Phase: electrum.PhaseDial, Outcome: electrum.OutcomeRefused, Err: errors.New("refused")}
	}
	return &electrum.Response{Result: json.RawMessage(raw)}, nil
}

func (f *fakeNetwork) queriedHosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.queried...)
	sort.Strings(out)
	return out
}

func tlsPeer(host string) string {
	return fmt.Sprintf(`[%q, %q, ["v1.4", "s50002", "t"]]`, host, host)
}

func peerList(entries ...string) string {
	out := "["
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out + "]"
}

func hosts(peers []model.PeerCandidate) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Host)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseFeatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		features []string
		wantSSL  *int
		wantTCP  *int
	}{
		{name: "tls and plaintext", features: []string{"s50002", "t"}, wantSSL: model.IntPtr(50002), wantTCP: model.IntPtr(50001)},
		{name: "malformed tls port", features: []string{"sXYZ"}, wantSSL: model.IntPtr(50002)},
		{name: "bare s", features: []string{"s"}, wantSSL: model.IntPtr(50002)},
		{name: "custom tls port", features: []string{"s995"}, wantSSL: model.IntPtr(995)},
		{name: "plaintext port digits ignored", features: []string{"t51001"}, wantTCP: model.IntPtr(50001)},
		{name: "last tls tag wins", features: []string{"s443", "s50004"}, wantSSL: model.IntPtr(50004)},
		{name: "unrelated tags", features: []string{"v1.4", "p10000", "pruned"}, wantSSL: nil, wantTCP: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ssl, tcp := ParseFeatures(tt.features)
			if !equalPort(ssl, tt.wantSSL) {
				t.Errorf("ssl: expected %v, got %v", deref(tt.wantSSL), deref(ssl))
			}
			if !equalPort(tcp, tt.wantTCP) {
				t.Errorf("tcp: expected %v, got %v", deref(tt.wantTCP), deref(tcp))
			}
		})
	}
}

func equalPort(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestParsePeerList(t *testing.T) {
	t.Parallel()

	t.Run("parses electrum entries", func(t *testing.T) {
		t.Parallel()

		raw := `[
			["83.212.111.114", "electrum.example.org", ["v1.4", "s50002", "t"]],
			["abc.onion", "abc.onion", ["v1.4", "t"]],
			["short"],
			[42, "numeric host", ["s"]]
		]`
		peers, err := ParsePeerList(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(peers) != 2 {
			t.Fatalf("expected 2 peers, got %d", len(peers))
		}
		if peers[0].Host != "83.212.111.114" || !peers[0].HasTLS() || *peers[0].SSLPort != 50002 {
			t.Errorf("unexpected first peer %+v", peers[0])
		}
		if peers[1].HasTLS() || peers[1].TCPPort == nil {
			t.Errorf("expected plaintext-only second peer, got %+v", peers[1])
		}
		var raw0 []any
		if err := json.Unmarshal(peers[0].Raw, &raw0); err != nil || len(raw0) != 3 {
			t.Errorf("expected raw entry to be kept, got %s", peers[0].Raw)
		}
	})

	t.Run("two element entry with features", func(t *testing.T) {
		t.Parallel()

		peers, err := ParsePeerList(json.RawMessage(`[["host.example", ["s50012"]]]`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(peers) != 1 || peers[0].SSLPort == nil || *peers[0].SSLPort != 50012 {
			t.Errorf("unexpected peers %+v", peers)
		}
	})

	t.Run("rejects non-array result", func(t *testing.T) {
		t.Parallel()

		if _, err := ParsePeerList(json.RawMessage(`{"peers": []}`)); !errors.Is(err, ErrNotPeerList) {
			t.Errorf("expected ErrNotPeerList, got %v", err)
		}
	})
}

func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("never queries beyond max depth", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed": peerList(tlsPeer("a")),
			"a":    peerList(tlsPeer("b")),
			"b":    peerList(tlsPeer("c")),
			"c":    peerList(tlsPeer("d")),
		}}
		spider := NewSpider(net, WithMaxDepth(2))

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := net.queriedHosts(), []string{"a:50002", "b:50002", "seed:50002"}; !equalStrings(got, want) {
			t.Errorf("expected queries %v, got %v", want, got)
		}
		if got, want := hosts(peers), []string{"a", "b", "c"}; !equalStrings(got, want) {
			t.Errorf("expected peers %v, got %v", want, got)
		}
	})

	t.Run("queries each host once", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed": peerList(tlsPeer("a"), tlsPeer("b"), tlsPeer("seed")),
			"a":    peerList(tlsPeer("b"), `["b", "b", ["s50004"]]`, tlsPeer("seed")),
			"b":    peerList(tlsPeer("a"), tlsPeer("c")),
			"c":    peerList(tlsPeer("a")),
		}}
		spider := NewSpider(net, WithMaxDepth(5))

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := net.queriedHosts(), []string{"a:50002", "b:50002", "c:50002", "seed:50002"}; !equalStrings(got, want) {
			t.Errorf("expected queries %v, got %v", want, got)
		}
		if got, want := hosts(peers), []string{"a", "b", "c", "seed"}; !equalStrings(got, want) {
			t.Errorf("expected deduplicated peers %v, got %v", want, got)
		}
		if st := spider.Stats(); st.Queried != 4 || st.Discovered != 4 {
			t.Errorf("unexpected stats %+v", st)
		}
	})

	t.Run("does not crawl plaintext-only peers", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed":  peerList(`["plain", "plain", ["v1.4", "t"]]`, tlsPeer("a")),
			"plain": peerList(tlsPeer("hidden")),
			"a":     peerList(),
		}}
		spider := NewSpider(net)

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := hosts(peers), []string{"a", "plain"}; !equalStrings(got, want) {
			t.Errorf("expected peers %v, got %v", want, got)
		}
		for _, q := range net.queriedHosts() {
			if q == "plain:50001" || q == "plain:50002" {
				t.Errorf("plaintext-only peer was queried: %s", q)
			}
		}
	})

	t.Run("failed branches end quietly", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed": peerList(tlsPeer("down"), tlsPeer("a")),
			"a":    `null`,
		}}
		spider := NewSpider(net)

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(peers) != 2 {
			t.Errorf("expected 2 peers, got %d", len(peers))
		}
		if st := spider.Stats(); st.Failed != 2 {
			t.Errorf("expected 2 failed queries, got %+v", st)
		}
	})

	t.Run("unreachable seed yields nothing", func(t *testing.T) {
		t.Parallel()

		spider := NewSpider(&fakeNetwork{peers: map[string]string{}})
		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(peers) != 0 {
			t.Errorf("expected no peers, got %v", peers)
		}
	})

	t.Run("keys visited hosts on the advertised string", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed":      peerList(tlsPeer("a.example"), tlsPeer("A.example")),
			"a.example": peerList(),
			"A.example": peerList(),
		}}
		spider := NewSpider(net)

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := net.queriedHosts(), []string{"A.example:50002", "a.example:50002", "seed:50002"}; !equalStrings(got, want) {
			t.Errorf("expected queries %v, got %v", want, got)
		}
		if got, want := hosts(peers), []string{"A.example", "a.example"}; !equalStrings(got, want) {
			t.Errorf("expected peers %v, got %v", want, got)
		}
	})

	t.Run("excluded hosts are neither queried nor reported", func(t *testing.T) {
		t.Parallel()

		net := &fakeNetwork{peers: map[string]string{
			"seed":    peerList(tlsPeer("a"), tlsPeer("blocked")),
			"a":       peerList(),
			"blocked": peerList(tlsPeer("z")),
		}}
		spider := NewSpider(net, WithExclude([]string{"BLOCKED"}))

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := hosts(peers), []string{"a"}; !equalStrings(got, want) {
			t.Errorf("expected peers %v, got %v", want, got)
		}
		if st := spider.Stats(); st.Excluded != 1 {
			t.Errorf("expected 1 excluded peer, got %+v", st)
		}
	})

	t.Run("bounds in-flight queries by the gate", func(t *testing.T) {
		t.Parallel()

		entries := make([]string, 0, 30)
		graph := map[string]string{}
		for i := range 30 {
			h := fmt.Sprintf("h%02d", i)
			entries = append(entries, tlsPeer(h))
			graph[h] = peerList()
		}
		graph["seed"] = peerList(entries...)

		net := &fakeNetwork{peers: graph, delay: 10 * time.Millisecond}
		spider := NewSpider(net, WithGate(admission.New(3)))

		peers, err := spider.Crawl(context.Background(), "seed", 50002)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(peers) != 30 {
			t.Errorf("expected 30 peers, got %d", len(peers))
		}
		if got := net.peak.Load(); got > 3 {
			t.Errorf("expected at most 3 concurrent queries, got %d", got)
		}
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		spider := NewSpider(&fakeNetwork{peers: map[string]string{"seed": peerList(tlsPeer("a"))}})

		_, err := spider.Crawl(ctx, "seed", 50002)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
