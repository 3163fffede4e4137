package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultSeed is the bootstrap server the crawl starts from.
	DefaultSeed = "electrum3.bluewallet.io:50002"

	// DefaultTimeout bounds connect, write and read for protocol calls.
	DefaultTimeout = 4 * time.Second

	// DefaultTLSTimeout bounds connect and handshake when collecting certificates.
	DefaultTLSTimeout = 5 * time.Second

	// DefaultConcurrency caps in-flight connections for discovery,
	// validation and fingerprinting.
	DefaultConcurrency = 200

	// DefaultTLSConcurrency caps in-flight handshakes for certificate collection.
	DefaultTLSConcurrency = 100

	// DefaultMaxDepth is the deepest crawl level queried; the seed is level 0.
	DefaultMaxDepth = 2

	// DefaultClientName is sent as the client identity in server.version.
	DefaultClientName = "Electrum 4.4.5"

	// DefaultProtocolVersion is the protocol version requested in server.version.
	DefaultProtocolVersion = "1.4"

	// DefaultOutputDir receives the stage artifacts.
	DefaultOutputDir = "data"

	// DefaultTopN is the number of hosts in the score summary.
	DefaultTopN = 20

	// HistoryQueryAddress probes history with blockchain.address.get_history.
	HistoryQueryAddress = "address"

	// HistoryQueryScripthash probes history with blockchain.scripthash.get_history.
	HistoryQueryScripthash = "scripthash"

	// AppName is the application name used for XDG directory paths.
	AppName = "electrumscan"
)

// Config holds every option of a scan. It is built from defaults, then the
// settings file, then command-line flags, and passed down explicitly.
type Config struct {
	// Seed is the bootstrap server as host:port.
	Seed string

	// Timeout bounds each connect, write and read of a protocol call.
	Timeout time.Duration

	// TLSTimeout bounds connect and handshake during certificate collection.
	TLSTimeout time.Duration

	// Concurrency caps in-flight connections for discovery, validation
	// and fingerprinting.
	Concurrency int

	// TLSConcurrency caps in-flight handshakes for certificate collection.
	TLSConcurrency int

	// MaxDepth is the deepest crawl level queried.
	MaxDepth int

	// ClientName and ProtocolVersion are the server.version parameters.
	ClientName      string
	ProtocolVersion string

	// HistoryQuery selects address or scripthash history probes.
	HistoryQuery string

	// Proxy is an optional socks5:// URL all connections are routed through.
	Proxy string

	// Rate limits new connections per second; zero means unlimited.
	Rate float64

	// Exclude lists hosts that are never contacted.
	Exclude []string

	// OutputDir receives the stage artifacts.
	OutputDir string

	// TopN is the number of hosts listed in the score summary.
	TopN int

	// MarkdownFile, when set, receives a Markdown report after scoring.
	MarkdownFile string

	// MetricsFile, when set, receives Prometheus metrics in text format
	// when the command finishes.
	MetricsFile string

	// DBDir is the directory of the scan history database.
	DBDir string

	// SaveToDB stores scores in the history database after scoring.
	SaveToDB bool

	// Verbose enables debug logging.
	Verbose bool

	// JSONLogs switches log output to JSON.
	JSONLogs bool

	// ConfigFilePath is an explicit settings file path. When empty,
	// .electrumscan is looked up in the current and home directories.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Seed:            DefaultSeed,
		Timeout:         DefaultTimeout,
		TLSTimeout:      DefaultTLSTimeout,
		Concurrency:     DefaultConcurrency,
		TLSConcurrency:  DefaultTLSConcurrency,
		MaxDepth:        DefaultMaxDepth,
		ClientName:      DefaultClientName,
		ProtocolVersion: DefaultProtocolVersion,
		HistoryQuery:    HistoryQueryAddress,
		OutputDir:       DefaultOutputDir,
		TopN:            DefaultTopN,
		DBDir:           XDGDataDir(),
		SaveToDB:        true,
	}
}

// XDGDataDir returns the XDG data directory for electrumscan.
// On Linux: ~/.local/share/electrumscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// SeedHostPort splits Seed into host and port.
func (c *Config) SeedHostPort() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Seed)
	if err != nil || host == "" {
		return "", 0, ErrInvalidSeed
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, ErrInvalidSeed
	}
	return host, port, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, _, err := c.SeedHostPort(); err != nil {
		return err
	}
	if c.Timeout <= 0 || c.TLSTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 || c.TLSConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if c.HistoryQuery != HistoryQueryAddress && c.HistoryQuery != HistoryQueryScripthash {
		return ErrInvalidHistoryQuery
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") || u.Host == "" {
			return ErrInvalidProxy
		}
	}
	if c.Rate < 0 {
		return ErrInvalidRate
	}
	if c.TopN <= 0 {
		return ErrInvalidTopN
	}
	return nil
}
