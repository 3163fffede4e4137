package crawler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/electrumscan/internal/admission"
	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
)

// Caller performs one request/response exchange with a server.
// *electrum.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, host string, port int, method string, params ...any) (*electrum.Response, error)
}

// Spider crawls the peer-list graph from a seed server.
type Spider struct {
	// caller issues server.peers.subscribe.
	caller Caller

	// gate bounds in-flight queries across the whole crawl.
	gate *admission.Gate

	// maxDepth is the deepest level queried; the seed is depth 0.
	maxDepth int

	// exclude lists hosts that are neither queried nor reported.
	exclude model.HostSet

	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats summarizes a crawl.
type Stats struct {
	// Queried is the number of hosts a peer list was requested from.
	Queried int
	// Failed is the number of queries that produced no usable peer list.
	Failed int
	// Discovered is the number of distinct hosts reported.
	Discovered int
	// Excluded is the number of peers dropped by the exclude list.
	Excluded int
}

// Option configures a Spider.
type Option func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithGate sets the admission gate shared by all queries.
func WithGate(g *admission.Gate) Option {
	return func(s *Spider) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithExclude sets hosts that must never be contacted.
func WithExclude(hosts []string) Option {
	return func(s *Spider) {
		for _, h := range hosts {
			s.exclude.Add(h)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider. Defaults: depth 2, 200 concurrent queries.
func NewSpider(caller Caller, opts ...Option) *Spider {
	s := &Spider{
		caller:   caller,
		gate:     admission.New(200),
		maxDepth: 2,
		exclude:  model.HostSet{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type queueItem struct {
	host  string
	port  int
	depth int
}

type queryResult struct {
	item  queueItem
	peers []model.PeerCandidate
}

// Crawl walks the peer graph breadth-first from seedHost:seedPort and
// returns every distinct peer discovered, first sighting wins. The seed
// itself is only reported if some server lists it.
//
// Crawl returns early with the peers found so far and ctx.Err() when ctx is
// cancelled; queries already in flight are awaited first.
func (s *Spider) Crawl(ctx context.Context, seedHost string, seedPort int) ([]model.PeerCandidate, error) {
	s.mu.Lock()
	s.stats = Stats{}
	s.mu.Unlock()

	visited := make(map[string]struct{})
	seen := make(map[string]struct{})
	discovered := make([]model.PeerCandidate, 0)

	frontier := []queueItem{{host: seedHost, port: seedPort, depth: 0}}
	results := make(chan queryResult)
	inFlight := 0

	for len(frontier) > 0 || inFlight > 0 {
		for len(frontier) > 0 && ctx.Err() == nil {
			item := frontier[0]
			frontier = frontier[1:]

			if item.depth > s.maxDepth {
				continue
			}
			if _, ok := visited[item.host]; ok {
				continue
			}
			visited[item.host] = struct{}{}
			if s.exclude.Contains(item.host) {
				continue
			}

			inFlight++
			go func() {
				results <- queryResult{item: item, peers: s.query(ctx, item)}
			}()
		}
		if ctx.Err() != nil {
			frontier = nil
		}
		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--

		for _, peer := range res.peers {
			key := peer.Host
			if s.exclude.Contains(key) {
				s.count(func(st *Stats) { st.Excluded++ })
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				discovered = append(discovered, peer)
			}
			if !peer.HasTLS() || res.item.depth+1 > s.maxDepth {
				continue
			}
			if _, ok := visited[key]; ok {
				continue
			}
			frontier = append(frontier, queueItem{host: peer.Host, port: *peer.SSLPort, depth: res.item.depth + 1})
		}
	}

	s.count(func(st *Stats) { st.Discovered = len(discovered) })
	s.logger.Info("crawl finished",
		"seed", model.JoinHostPort(seedHost, seedPort),
		"queried", s.Stats().Queried,
		"discovered", len(discovered),
	)
	return discovered, ctx.Err()
}

// query asks one server for its peers. Any failure yields nil.
func (s *Spider) query(ctx context.Context, item queueItem) []model.PeerCandidate {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil
	}
	defer s.gate.Release()

	s.count(func(st *Stats) { st.Queried++ })
	resp, err := s.caller.Call(ctx, item.host, item.port, electrum.MethodPeersSubscribe)
	if err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		s.logger.Debug("peer list query failed",
			"host", item.host, "port", item.port, "depth", item.depth, "error", electrum.Sentinel(err))
		return nil
	}
	if !resp.HasResult() {
		s.count(func(st *Stats) { st.Failed++ })
		return nil
	}

	peers, err := ParsePeerList(resp.Result)
	if err != nil {
		s.count(func(st *Stats) { st.Failed++ })
		s.logger.Debug("unusable peer list", "host", item.host, "error", err)
		return nil
	}
	s.logger.Debug("peer list received", "host", item.host, "depth", item.depth, "peers", len(peers))
	return peers
}

func (s *Spider) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Stats returns statistics for the most recent crawl.
func (s *Spider) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
