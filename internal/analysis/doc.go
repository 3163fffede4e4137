// Package analysis groups certificate and behavior records into clusters and
// turns them into per-host honeypot scores.
//
// Everything here is a pure function of its inputs: clusters are rebuilt
// from scratch on every call and scoring never touches the network.
// Grouping does not depend on input order, but members and cluster keys are
// listed in the order they were first seen, so equal input yields equal
// output.
package analysis
