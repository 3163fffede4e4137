package certs

import "time"

const (
	// certTimeLayout is the textual certificate time form, e.g.
	// "Aug 15 12:00:00 2025 GMT".
	certTimeLayout = "Jan _2 15:04:05 2006 MST"
	isoLayout      = "2006-01-02T15:04:05"
)

// FormatCertTime renders t in the textual certificate time form.
func FormatCertTime(t time.Time) string {
	return t.UTC().Format("Jan _2 15:04:05 2006") + " GMT"
}

// ParseCertTime converts a textual certificate time to ISO-8601 without a
// zone suffix. Input that does not parse is returned unchanged.
func ParseCertTime(s string) string {
	t, err := time.Parse(certTimeLayout, s)
	if err != nil {
		return s
	}
	return t.Format(isoLayout)
}
