package relayer

// inputProofRequest is the payload for POST /v1/input-proof. The relayer
// encrypts the plaintext values under the network FHE key and returns
// ciphertext handles plus a ZK proof of correct encryption, bound to the
// (contract, user) pair.
type inputProofRequest struct {
	RequestID       string       `json:"requestId"`
	ContractAddress string       `json:"contractAddress"`
	UserAddress     string       `json:"userAddress"`
	Values          []inputValue `json:"values"`
}

// inputValue is one plaintext to encrypt. Type is "uint32" or "bool".
type inputValue struct {
	Type  string `json:"type"`
	Value uint64 `json:"value"`
}

// inputProofResponse mirrors the relayer's encrypt response: one handle per
// submitted value, in submission order, plus the shared input proof.
type inputProofResponse struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"` // 0x-prefixed hex
}

// HandleContractPair binds one ciphertext handle to the contract that owns
// it. Grants are scoped to exactly these pairs.
type HandleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// userDecryptRequest is the payload for POST /v1/user-decrypt.
type userDecryptRequest struct {
	RequestID         string               `json:"requestId"`
	HandleContracts   []HandleContractPair `json:"handleContractPairs"`
	PublicKey         string               `json:"publicKey"`  // ephemeral, 0x hex
	Signature         string               `json:"signature"`  // EIP-712, hex without 0x
	ContractAddresses []string             `json:"contractAddresses"`
	UserAddress       string               `json:"userAddress"`
	StartTimestamp    string               `json:"startTimestamp"`
	DurationDays      string               `json:"durationDays"`
}

// userDecryptResponse maps each requested handle to its cleartext value,
// rendered as a decimal string by the relayer.
type userDecryptResponse struct {
	Cleartexts map[string]string `json:"cleartexts"`
}

// apiError is the relayer's JSON error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
