// Package electrum implements the client side of the Electrum line protocol
// used by every scan stage.
//
// A request is one JSON object ({"id", "method", "params"}) followed by a
// newline; the server answers with one JSON line. Connections are attempted
// over TLS first, with certificate and hostname verification disabled and a
// relaxed cipher policy, and fall back once to plaintext on the fixed port
// 50001. Nothing is retried beyond that fallback.
//
// # Usage
//
//	client := electrum.NewClient(electrum.WithTimeout(4 * time.Second))
//	resp, err := client.Call(ctx, "electrum.example.org", 50002, electrum.MethodPing)
//	if err != nil {
//		fmt.Println(electrum.Sentinel(err)) // "connection_failed", "invalid_json", ...
//	}
//
// Multi-call exchanges on one connection use Dial and Conn.Call.
package electrum
