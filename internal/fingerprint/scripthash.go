package fingerprint

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Scripthash returns the Electrum scripthash of address: the SHA-256 of its
// output script, byte-reversed and hex-encoded.
func Scripthash(address string, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return "", fmt.Errorf("decode address %s: %w", address, err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("output script for %s: %w", address, err)
	}
	// chainhash renders hashes byte-reversed, which is the Electrum convention.
	return chainhash.HashH(script).String(), nil
}
