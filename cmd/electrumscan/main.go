// Package main provides the entry point for the electrumscan CLI.
//
// electrumscan maps the public Electrum server network and flags servers
// that look like honeypots.
//
// Usage:
//
//	electrumscan run --flow all
//	electrumscan discover --seed host:50002
//	electrumscan score --markdown report.md
//
// See --help for all available options.
package main

func main() {
	Execute()
}
