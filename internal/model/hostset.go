package model

import "strings"

// HostSet is a case-insensitive set of host names.
type HostSet map[string]struct{}

// NewHostSet builds a HostSet, ignoring blank entries.
func NewHostSet(hosts []string) HostSet {
	s := make(HostSet, len(hosts))
	for _, h := range hosts {
		s.Add(h)
	}
	return s
}

// NormalizeHost lower-cases and trims a host name.
func NormalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Add inserts host.
func (s HostSet) Add(host string) {
	if h := NormalizeHost(host); h != "" {
		s[h] = struct{}{}
	}
}

// Contains reports whether host is in the set.
func (s HostSet) Contains(host string) bool {
	_, ok := s[NormalizeHost(host)]
	return ok
}
