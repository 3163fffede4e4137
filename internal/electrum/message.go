package electrum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/electrumscan/internal/model"
)

// Protocol methods issued by the scanner.
const (
	MethodPeersSubscribe    = "server.peers.subscribe"
	MethodVersion           = "server.version"
	MethodBanner            = "server.banner"
	MethodPing              = "server.ping"
	MethodAddressHistory    = "blockchain.address.get_history"
	MethodScripthashHistory = "blockchain.scripthash.get_history"
)

// Request is a single protocol request.
type Request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Encode serializes the request as one newline-terminated line.
func (r Request) Encode() ([]byte, error) {
	if r.Params == nil {
		r.Params = []any{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int
	Message string
}

// UnmarshalJSON accepts both the object form ({"code", "message"}) and the
// bare string some servers send.
func (e *RPCError) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		e.Message = text
		return nil
	}
	var obj struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Code = obj.Code
	e.Message = obj.Message
	return nil
}

// Error implements error.
func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("code %d: %s", e.Code, e.Message)
	}
	return e.Message
}

// Response is one response line.
type Response struct {
	// Raw is the line as received, without surrounding whitespace.
	Raw string

	// Value is the whole parsed document; nil when the line was not JSON.
	Value any

	// Result is the result member, if any.
	Result json.RawMessage

	// Error is the error member, if any.
	Error *RPCError

	// Latency spans writing the request to reading the response line.
	Latency time.Duration

	// Transport is the transport the exchange used.
	Transport model.Transport
}

// parseResponse decodes a response line into resp.
func parseResponse(line []byte, resp *Response) error {
	trimmed := bytes.TrimSpace(line)
	resp.Raw = string(trimmed)
	if len(trimmed) == 0 {
		return ErrEmptyResponse
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return err
	}
	if dec.More() {
		return ErrTrailingData
	}
	resp.Value = value

	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	if _, ok := obj["result"]; ok {
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return err
		}
		resp.Result = envelope.Result
	}
	if raw, ok := obj["error"]; ok && raw != nil {
		var envelope struct {
			Error *RPCError `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return err
		}
		resp.Error = envelope.Error
	}
	return nil
}

// HasResult reports whether the response carried a non-null result.
func (r *Response) HasResult() bool {
	return len(r.Result) > 0 && !bytes.Equal(r.Result, []byte("null"))
}

// Canonical returns the canonical string form of the parsed response:
// compact JSON with object keys sorted. It is empty when nothing was parsed.
func (r *Response) Canonical() string {
	if r == nil || r.Value == nil {
		return ""
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		return ""
	}
	return string(data)
}

// Hash returns the SHA-256 hex of Canonical, or nil when nothing was parsed.
func (r *Response) Hash() *string {
	canonical := r.Canonical()
	if canonical == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(canonical))
	h := hex.EncodeToString(sum[:])
	return &h
}
