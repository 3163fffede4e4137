// Package log builds the slog loggers used across electrumscan.
//
// Every logger wraps its text or JSON handler in a SanitizingHandler, which
// does two things before a record reaches the output:
//
//   - masks credentials: proxy passwords in socks5:// URLs, attributes whose
//     key names a secret, and values that look like extended private keys
//   - neutralizes control characters in strings, since banners, versions and
//     error messages come from untrusted servers and must not forge log lines
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("peer answered", "host", host, "banner", banner)
package log
