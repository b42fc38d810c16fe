// Package relayer implements the HTTP client for the FHE relayer, the
// encryption/decryption backend that produces ciphertext handles for
// encrypted inputs and fulfills signed user-decryption requests.
package relayer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
)

const (
	inputProofPath  = "/v1/input-proof"
	userDecryptPath = "/v1/user-decrypt"
)

// Client is the REST client for the FHE relayer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a relayer Client. baseURL is the relayer root, e.g.
// "https://relayer.testnet.zama.cloud". apiKey may be empty for relayers
// that do not require one.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EncryptedInput is the relayer's answer to an encrypt request: one handle
// per plaintext in submission order plus a shared proof blob.
type EncryptedInput struct {
	AmountHandle string
	ChoiceHandle string
	Proof        []byte
}

// EncryptInput asks the relayer to encrypt (amount, choice) under the
// network FHE key, bound to the (contract, user) pair. The binding makes the
// returned handles unusable with any other contract or submitter.
func (c *Client) EncryptInput(ctx context.Context, contractAddr, userAddr string, amount uint32, choice bool) (EncryptedInput, error) {
	var choiceVal uint64
	if choice {
		choiceVal = 1
	}

	reqBody := inputProofRequest{
		RequestID:       uuid.NewString(),
		ContractAddress: contractAddr,
		UserAddress:     userAddr,
		Values: []inputValue{
			{Type: "uint32", Value: uint64(amount)},
			{Type: "bool", Value: choiceVal},
		},
	}

	respBody, err := c.doRequest(ctx, inputProofPath, reqBody)
	if err != nil {
		return EncryptedInput{}, err
	}

	var resp inputProofResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return EncryptedInput{}, fmt.Errorf("relayer: decode input-proof response: %w", err)
	}
	if len(resp.Handles) != 2 {
		return EncryptedInput{}, fmt.Errorf("relayer: expected 2 handles, got %d: %w", len(resp.Handles), domain.ErrMalformedResponse)
	}

	proof, err := hex.DecodeString(strings.TrimPrefix(resp.InputProof, "0x"))
	if err != nil {
		return EncryptedInput{}, fmt.Errorf("relayer: decode input proof hex: %w", err)
	}

	return EncryptedInput{
		AmountHandle: resp.Handles[0],
		ChoiceHandle: resp.Handles[1],
		Proof:        proof,
	}, nil
}

// UserDecrypt submits a signed decryption grant and returns the cleartext
// for every requested handle. The grant signature must cover the ephemeral
// public key, the contract set, and the validity window; the relayer rejects
// mismatches with an authorization error.
//
// Every requested handle must appear in the response; a missing handle is
// reported as domain.ErrMalformedResponse and the partial mapping is
// discarded.
func (c *Client) UserDecrypt(
	ctx context.Context,
	pairs []HandleContractPair,
	keypair *crypto.EphemeralKeypair,
	signature string,
	contractAddresses []string,
	userAddr string,
	startTimestamp int64,
	durationDays int64,
) (map[string]uint64, error) {
	reqBody := userDecryptRequest{
		RequestID:         uuid.NewString(),
		HandleContracts:   pairs,
		PublicKey:         keypair.PublicKeyHex(),
		Signature:         strings.TrimPrefix(signature, "0x"),
		ContractAddresses: contractAddresses,
		UserAddress:       userAddr,
		StartTimestamp:    strconv.FormatInt(startTimestamp, 10),
		DurationDays:      strconv.FormatInt(durationDays, 10),
	}

	respBody, err := c.doRequest(ctx, userDecryptPath, reqBody)
	if err != nil {
		return nil, err
	}

	var resp userDecryptResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("relayer: decode user-decrypt response: %w", err)
	}

	out := make(map[string]uint64, len(pairs))
	for _, p := range pairs {
		raw, ok := resp.Cleartexts[p.Handle]
		if !ok {
			return nil, fmt.Errorf("relayer: handle %s absent from response: %w", p.Handle, domain.ErrMalformedResponse)
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("relayer: cleartext %q for handle %s: %w", raw, p.Handle, domain.ErrMalformedResponse)
		}
		out[p.Handle] = v
	}
	return out, nil
}

// doRequest POSTs a JSON body and returns the raw response body. Transport
// failures map to domain.ErrBackendUnreachable, 401/403 to
// domain.ErrAuthorizationDenied.
func (c *Client) doRequest(ctx context.Context, path string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("relayer: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("relayer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relayer: %s: %v: %w", path, err, domain.ErrBackendUnreachable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relayer: read response: %v: %w", err, domain.ErrBackendUnreachable)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("relayer: %s: %w", apiErrorMessage(respBody), domain.ErrAuthorizationDenied)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("relayer: status %d: %s: %w", resp.StatusCode, apiErrorMessage(respBody), domain.ErrBackendUnreachable)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("relayer: status %d: %s", resp.StatusCode, apiErrorMessage(respBody))
	}

	return respBody, nil
}

// apiErrorMessage extracts the relayer's error message, falling back to the
// raw body.
func apiErrorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
