package crypto

import (
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// LoadECDSA resolves the configured key source into a secp256k1 signing key
// for submitting asset transfers.
func LoadECDSA(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse ECDSA key: %w", err)
	}
	return key, nil
}
