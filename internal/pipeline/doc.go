// Package pipeline runs the scan stages in sequence over one ScanRun.
//
// Each stage is a Step. A step reads the records earlier steps put on the
// run and, when they are absent because the stage runs on its own, loads
// them from the artifact directory instead. Every step writes its own
// artifact, so a later invocation can resume from any stage.
//
// Flows bundle the stages the way operators usually run them:
//
//	network   discover -> validate -> certs
//	analysis  fingerprint -> cluster -> score
//	all       network followed by analysis
package pipeline
