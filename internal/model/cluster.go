package model

// Sentinel cluster keys substituted for missing values.
const (
	UnknownIssuer  = "UNKNOWN_ISSUER"
	UnknownSubject = "UNKNOWN_SUBJECT"

	// NoResponse groups fingerprint records whose banner probe produced no
	// response hash.
	NoResponse = "NO_RESPONSE"
)

// Cluster is a group of records sharing a key. Members keep first-seen
// order and the representative metadata is copied from the first member.
type Cluster struct {
	Key   string   `json:"key"`
	Count int      `json:"count"`
	Hosts []string `json:"hosts"`
	Ports []int    `json:"ports"`

	Issuer    *string `json:"issuer"`
	Subject   *string `json:"subject"`
	NotBefore *string `json:"not_before"`
	NotAfter  *string `json:"not_after"`
}

// Members returns the member addresses as host:port in first-seen order.
func (c Cluster) Members() []string {
	members := make([]string, len(c.Hosts))
	for i, h := range c.Hosts {
		port := 0
		if i < len(c.Ports) {
			port = c.Ports[i]
		}
		members[i] = JoinHostPort(h, port)
	}
	return members
}

// Size returns the number of members.
func (c Cluster) Size() int {
	return len(c.Hosts)
}
