// Package database stores scan history in SQLite.
//
// Each scored run is saved as one row in runs with its scores in scores,
// so that the history and compare commands can show how individual servers
// move between risk levels over time. The driver is modernc.org/sqlite,
// which needs no cgo.
package database
