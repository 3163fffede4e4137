// Package config holds the scanner configuration: defaults, validation and
// the optional .electrumscan settings file.
package config
