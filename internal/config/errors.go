package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidTimeout is returned when a network timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when a concurrency cap is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	ErrInvalidDepth = errors.New("invalid max depth: must be zero or more")

	// ErrInvalidSeed is returned when the seed is not a host:port pair.
	ErrInvalidSeed = errors.New("invalid seed: expected host:port")

	// ErrInvalidHistoryQuery is returned for a history query mode other than
	// "address" or "scripthash".
	ErrInvalidHistoryQuery = errors.New("invalid history query: must be address or scripthash")

	// ErrInvalidProxy is returned when the proxy is not a socks5:// URL.
	ErrInvalidProxy = errors.New("invalid proxy: expected socks5://host:port")

	// ErrInvalidRate is returned when the connection rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must be zero or more")

	// ErrInvalidTopN is returned when the summary size is not positive.
	ErrInvalidTopN = errors.New("invalid top: must be positive")
)
