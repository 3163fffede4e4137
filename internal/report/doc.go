// Package report renders the results of a scan run.
//
//   - SimpleWriter prints the console summaries: the top suspected servers
//     and the certificate and behavior cluster summaries
//   - MarkdownWriter produces a shareable Markdown report
//   - JSONWriter emits the scores with run metadata for other tools
//
// All writers read a *model.ScanRun and print only the sections for which
// the run holds data, so the same writer serves single stages and flows.
package report
