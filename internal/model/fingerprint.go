package model

import (
	"encoding/json"
	"fmt"
)

// ProbeOK is the error value recorded for a probe that received a
// well-formed, non-error response.
const ProbeOK = "ok"

// Probe names one request of the behavioral probe battery.
type Probe string

// The six behavioral probes, in the order they are issued.
const (
	ProbeVersion       Probe = "version"
	ProbeBanner        Probe = "banner"
	ProbePing          Probe = "ping"
	ProbeHistory       Probe = "history"
	ProbeHistoryP2WPKH Probe = "history_p2wpkh"
	ProbeHistoryP2TR   Probe = "history_p2tr"
)

// Probes lists every probe in issue order.
var Probes = []Probe{
	ProbeVersion,
	ProbeBanner,
	ProbePing,
	ProbeHistory,
	ProbeHistoryP2WPKH,
	ProbeHistoryP2TR,
}

// ProbeResult is the outcome of a single probe on its own connection.
type ProbeResult struct {
	// LatencyMs is nil when no response line was read.
	LatencyMs *float64

	// Error is ProbeOK on success, otherwise a failure description.
	Error string

	// ResponseHash is the SHA-256 hex of the canonical response form,
	// nil when no parseable response was received.
	ResponseHash *string
}

// OK reports whether the probe succeeded.
func (r ProbeResult) OK() bool {
	return r.Error == ProbeOK
}

// FingerprintRecord holds the probe battery results for one server.
type FingerprintRecord struct {
	Host     string
	Port     int
	Protocol Transport

	// Results is keyed by probe; a missing key means the probe never ran.
	Results map[Probe]ProbeResult

	SupportsP2PKH  bool
	SupportsP2WPKH bool
	SupportsP2TR   bool
}

// Result returns the result for p, or a zero ProbeResult when absent.
func (f FingerprintRecord) Result(p Probe) ProbeResult {
	if f.Results == nil {
		return ProbeResult{}
	}
	return f.Results[p]
}

// Address returns host:port.
func (f FingerprintRecord) Address() string {
	return JoinHostPort(f.Host, f.Port)
}

// MarshalJSON flattens the per-probe results into latency_<probe>,
// error_<probe> and response_hash_<probe> keys.
func (f FingerprintRecord) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"host":            f.Host,
		"port":            f.Port,
		"protocol":        f.Protocol,
		"supports_p2pkh":  f.SupportsP2PKH,
		"supports_p2wpkh": f.SupportsP2WPKH,
		"supports_p2tr":   f.SupportsP2TR,
	}
	for _, p := range Probes {
		r, ran := f.Results[p]
		out["latency_"+string(p)] = r.LatencyMs
		out["response_hash_"+string(p)] = r.ResponseHash
		if ran {
			out["error_"+string(p)] = r.Error
		} else {
			out["error_"+string(p)] = nil
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (f *FingerprintRecord) UnmarshalJSON(data []byte) error {
	var flat struct {
		Host           string    `json:"host"`
		Port           int       `json:"port"`
		Protocol       Transport `json:"protocol"`
		SupportsP2PKH  bool      `json:"supports_p2pkh"`
		SupportsP2WPKH bool      `json:"supports_p2wpkh"`
		SupportsP2TR   bool      `json:"supports_p2tr"`
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	results := make(map[Probe]ProbeResult, len(Probes))
	for _, p := range Probes {
		var r ProbeResult
		var errText *string
		present := false
		if raw, ok := fields["latency_"+string(p)]; ok {
			present = true
			if err := json.Unmarshal(raw, &r.LatencyMs); err != nil {
				return fmt.Errorf("latency_%s: %w", p, err)
			}
		}
		if raw, ok := fields["error_"+string(p)]; ok {
			present = true
			if err := json.Unmarshal(raw, &errText); err != nil {
				return fmt.Errorf("error_%s: %w", p, err)
			}
		}
		if raw, ok := fields["response_hash_"+string(p)]; ok {
			present = true
			if err := json.Unmarshal(raw, &r.ResponseHash); err != nil {
				return fmt.Errorf("response_hash_%s: %w", p, err)
			}
		}
		if !present || errText == nil {
			continue
		}
		r.Error = *errText
		results[p] = r
	}

	*f = FingerprintRecord{
		Host:           flat.Host,
		Port:           flat.Port,
		Protocol:       flat.Protocol,
		Results:        results,
		SupportsP2PKH:  flat.SupportsP2PKH,
		SupportsP2WPKH: flat.SupportsP2WPKH,
		SupportsP2TR:   flat.SupportsP2TR,
	}
	return nil
}
