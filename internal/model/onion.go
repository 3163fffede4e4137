package model

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// OnionSuffix is the domain suffix of Tor hidden services.
const OnionSuffix = ".onion"

const onionV3Version = 0x03

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

var onionChecksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is a hidden-service name. Such hosts are
// only reachable through a Tor SOCKS proxy.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(NormalizeHost(host), OnionSuffix)
}

// IsValidOnionV3 reports whether host is a well-formed v3 onion address
// with a correct checksum.
func IsValidOnionV3(host string) bool {
	host = NormalizeHost(host)
	if !onionV3Pattern.MatchString(host) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(host, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}
	// 32-byte ed25519 key, 2-byte checksum, version byte.
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}

	data := make([]byte, 0, len(onionChecksumPrefix)+len(pubkey)+1)
	data = append(data, onionChecksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return checksum[0] == sum[0] && checksum[1] == sum[1]
}

// IsOnionV2 reports whether host has the retired v2 onion format. Tor no
// longer routes to these addresses.
func IsOnionV2(host string) bool {
	return onionV2Pattern.MatchString(NormalizeHost(host))
}
