package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// UserDecryptRequestVerification(bytes publicKey,address[] contractAddresses,uint256 startTimestamp,uint256 durationDays)
	userDecryptRequestTypeHash = ethcrypto.Keccak256(
		[]byte("UserDecryptRequestVerification(bytes publicKey,address[] contractAddresses,uint256 startTimestamp,uint256 durationDays)"),
	)
)

// DecryptRequest is the structured data a participant signs to authorize the
// decryption backend to re-encrypt ciphertext handles under an ephemeral
// public key. The signature binds the key to the contract set and a validity
// window, so a grant cannot be replayed against other contracts or reused
// after expiry.
type DecryptRequest struct {
	// PublicKey is the ephemeral keypair's public half.
	PublicKey []byte

	// ContractAddresses is the set of contracts whose ciphertexts the grant
	// covers (hex addresses).
	ContractAddresses []string

	// StartTimestamp is the window start, unix seconds.
	StartTimestamp int64

	// DurationDays is the window length in days.
	DurationDays int64
}

// Signer provides EIP-712 signing for decryption grant requests against the
// FHE decryption backend.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	s := &Signer{
		privateKey: pk,
		address:    addr,
		chainID:    chainID,
	}

	// Pre-compute the domain separator for the Decryption domain.
	s.domainSep = buildDomainSeparator("Decryption", "1", chainID)

	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey exposes the underlying key for transaction signing.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// SignDecryptRequest signs a UserDecryptRequestVerification EIP-712 message.
// The returned string is a hex-encoded 65-byte signature (r || s || v)
// without the 0x prefix, the form the decryption backend expects.
func (s *Signer) SignDecryptRequest(req DecryptRequest) (string, error) {
	structHash := decryptRequestStructHash(req)
	digest := eip712Hash(s.domainSep, structHash)

	sig, err := s.signDigest(digest)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(sig, "0x"), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

// decryptRequestStructHash encodes and hashes a DecryptRequest according to
// EIP-712: dynamic bytes hash to keccak256(contents), address arrays hash to
// keccak256 of the concatenated 32-byte-padded elements.
func decryptRequestStructHash(req DecryptRequest) []byte {
	addrs := make([]byte, 0, len(req.ContractAddresses)*32)
	for _, a := range req.ContractAddresses {
		addr := common.HexToAddress(a)
		addrs = append(addrs, common.LeftPadBytes(addr.Bytes(), 32)...)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			userDecryptRequestTypeHash,
			ethcrypto.Keccak256(req.PublicKey),
			ethcrypto.Keccak256(addrs),
			bigIntTo32Bytes(big.NewInt(req.StartTimestamp)),
			bigIntTo32Bytes(big.NewInt(req.DurationDays)),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
