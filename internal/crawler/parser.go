package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/electrumscan/internal/model"
)

// ErrNotPeerList is returned when a peer-list result is not a JSON array.
var ErrNotPeerList = errors.New("result is not a peer list")

// ParsePeerList parses the result of server.peers.subscribe.
//
// Each entry looks like ["1.2.3.4", "host.example", ["v1.4", "s50002", "t"]].
// Entries with fewer than two elements, or without a string host, are
// skipped. The host is the first element; the feature list is the first
// array found after it.
func ParsePeerList(result json.RawMessage) ([]model.PeerCandidate, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotPeerList, err)
	}

	peers := make([]model.PeerCandidate, 0, len(entries))
	for _, raw := range entries {
		peer, ok := parseEntry(raw)
		if !ok {
			continue
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func parseEntry(raw json.RawMessage) (model.PeerCandidate, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) < 2 {
		return model.PeerCandidate{}, false
	}

	var host string
	if err := json.Unmarshal(elems[0], &host); err != nil || strings.TrimSpace(host) == "" {
		return model.PeerCandidate{}, false
	}

	var features []string
	for _, elem := range elems[1:] {
		var list []json.RawMessage
		if err := json.Unmarshal(elem, &list); err != nil {
			continue
		}
		for _, item := range list {
			var f string
			if json.Unmarshal(item, &f) == nil {
				features = append(features, f)
			}
		}
		break
	}

	peer := model.PeerCandidate{
		Host: strings.TrimSpace(host),
		Raw:  append(json.RawMessage(nil), raw...),
	}
	peer.SSLPort, peer.TCPPort = ParseFeatures(features)
	return peer, true
}

// ParseFeatures interprets feature tags. "s<port>" advertises TLS on port,
// falling back to the canonical TLS port when the suffix is not a number;
// "t" advertises plaintext, always on the fixed plaintext port. Later tags
// override earlier ones.
func ParseFeatures(features []string) (sslPort, tcpPort *int) {
	for _, f := range features {
		switch {
		case strings.HasPrefix(f, "s"):
			port, err := strconv.Atoi(f[1:])
			if err != nil || port <= 0 || port > 65535 {
				port = model.CanonicalTLSPort
			}
			sslPort = model.IntPtr(port)
		case strings.HasPrefix(f, "t"):
			tcpPort = model.IntPtr(model.PlaintextPort)
		}
	}
	return sslPort, tcpPort
}
