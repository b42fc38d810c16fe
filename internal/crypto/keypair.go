package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// EphemeralKeypair is a one-shot X25519 keypair generated per reveal
// attempt. The public half is bound into the signed decryption grant; the
// backend re-encrypts cleartexts under it so only the holder of the private
// half can read them. Keypairs are never persisted.
type EphemeralKeypair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// GenerateKeypair creates a fresh X25519 keypair from crypto/rand.
func GenerateKeypair() (*EphemeralKeypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generating ephemeral keypair: %w", err)
	}
	return &EphemeralKeypair{PublicKey: *pub, PrivateKey: *priv}, nil
}

// PublicKeyHex returns the 0x-prefixed hex encoding of the public half.
func (k *EphemeralKeypair) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(k.PublicKey[:])
}

// PrivateKeyHex returns the 0x-prefixed hex encoding of the private half.
func (k *EphemeralKeypair) PrivateKeyHex() string {
	return "0x" + hex.EncodeToString(k.PrivateKey[:])
}
