package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// MaskValue replaces sensitive values.
const MaskValue = "***REDACTED***"

// maxValueLen caps untrusted strings. Server banners can be arbitrarily long.
const maxValueLen = 512

// sensitiveKeywords mark attribute keys whose values are never logged.
// "key" alone is not listed: cert_key and cluster_key are ordinary fields.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential",
	"private", "mnemonic", "xprv",
}

var sensitivePatterns = []*regexp.Regexp{
	// BIP32 extended private keys (mainnet, testnet and SLIP-132 variants).
	regexp.MustCompile(`\b[xtyzuv]prv[1-9A-HJ-NP-Za-km-z]{100,}\b`),

	// PEM private key blocks.
	regexp.MustCompile(`(?i)-----BEGIN[A-Z ]*PRIVATE KEY-----`),

	// Bearer tokens, e.g. from a proxy error message.
	regexp.MustCompile(`(?i)\bbearer\s+\S+`),
}

// SanitizingHandler wraps an slog.Handler and rewrites every attribute before
// it is handled: secrets are masked and untrusted text is made printable.
type SanitizingHandler struct {
	handler slog.Handler
}

// NewSanitizingHandler wraps handler. A nil handler wraps slog.Default's.
func NewSanitizingHandler(handler slog.Handler) *SanitizingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SanitizingHandler{handler: handler}
}

// Enabled delegates to the wrapped handler.
func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the message and attributes of r and forwards it.
func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, printable(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

// WithAttrs sanitizes attrs once, when they are attached.
func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitizeAttr(a)
	}
	return &SanitizingHandler{handler: h.handler.WithAttrs(clean)}
}

// WithGroup delegates to the wrapped handler.
func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = sanitizeAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, SanitizeString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, SanitizeString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SanitizeString masks credentials in s and replaces control characters so
// the result is safe to print on a single log line.
func SanitizeString(s string) string {
	s = redactURLPasswords(s)
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, MaskValue)
	}
	s = printable(s)
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + "..."
	}
	return s
}

// redactURLPasswords masks the password of any URL in s that carries one.
func redactURLPasswords(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}
	fields := strings.Fields(s)
	for _, f := range fields {
		trimmed := strings.Trim(f, `"'(),`)
		u, err := url.Parse(trimmed)
		if err != nil || u.User == nil {
			continue
		}
		if _, has := u.User.Password(); !has {
			continue
		}
		s = strings.ReplaceAll(s, trimmed, u.Redacted())
	}
	return s
}

func printable(s string) string {
	if strings.IndexFunc(s, isUnsafe) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isUnsafe(r) {
			return '?'
		}
		return r
	}, s)
}

func isUnsafe(r rune) bool {
	return r == unicode.ReplacementChar || r == '\u2028' || r == '\u2029' || (unicode.IsControl(r) && r != '\t')
}

func level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// NewLogger returns a sanitizing text logger writing to w. Verbose enables
// debug output, otherwise the level is warn.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewSanitizingHandler(h))
}

// NewJSONLogger is NewLogger with JSON output, for log aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level(verbose)})
	return slog.New(NewSanitizingHandler(h))
}
