package node

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// IdentityFromSeed derives a deterministic Ed25519 key. The seed becomes the
// first byte of an otherwise zero 32-byte secret, so the same seed always
// yields the same peer ID.
func IdentityFromSeed(seed uint8) (crypto.PrivKey, error) {
	var secret [32]byte
	secret[0] = seed
	priv, _, err := crypto.GenerateEd25519Key(bytes.NewReader(secret[:]))
	if err != nil {
		return nil, fmt.Errorf("failed to derive key from seed: %w", err)
	}
	return priv, nil
}

// LoadOrCreateIdentity reads a ConfigEncodeKey-encoded key from path,
// generating and saving a new one when the file does not exist
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		keyBytes, err := crypto.ConfigDecodeKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode key file %s: %w", path, err)
		}
		priv, err := crypto.UnmarshalPrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal key file %s: %w", path, err)
		}
		return priv, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	priv, err := randomIdentity()
	if err != nil {
		return nil, err
	}
	keyBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, []byte(crypto.ConfigEncodeKey(keyBytes)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return priv, nil
}

func randomIdentity() (crypto.PrivKey, error) {
	priv, _, err := crypto.GenerateKeyPairWithReader(crypto.Ed25519, 2048, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return priv, nil
}

// identity picks the node key: a seed wins over a key file, which wins over a fresh key
func identity(seed int, keyFile string) (crypto.PrivKey, error) {
	switch {
	case seed >= 0:
		return IdentityFromSeed(uint8(seed))
	case keyFile != "":
		return LoadOrCreateIdentity(keyFile)
	default:
		return randomIdentity()
	}
}
