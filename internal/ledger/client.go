// Package ledger implements the on-chain EncryptedBet contract client over
// go-ethereum. It is the only component that talks to the distributed
// ledger; everything above it sees the domain.Ledger interface and typed
// domain errors.
package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
)

// Client implements domain.Ledger against a deployed EncryptedBet contract.
// State-changing methods block until the transaction is mined, so a nil
// error means the ledger has durably applied the operation.
type Client struct {
	eth            *ethclient.Client
	contract       common.Address
	parsed         abi.ABI
	signer         *crypto.Signer
	chainID        *big.Int
	confirmTimeout time.Duration
}

// Config holds the parameters to construct a ledger Client.
type Config struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	ConfirmTimeout  time.Duration
}

// New dials the RPC endpoint and prepares the contract binding.
func New(ctx context.Context, cfg Config, signer *crypto.Signer) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %v: %w", cfg.RPCURL, err, domain.ErrLedgerUnavailable)
	}

	parsed, err := abi.JSON(strings.NewReader(encryptedBetABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse ABI: %w", err)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		eth:            eth,
		contract:       common.HexToAddress(cfg.ContractAddress),
		parsed:         parsed,
		signer:         signer,
		chainID:        big.NewInt(cfg.ChainID),
		confirmTimeout: timeout,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ContractAddress returns the bound contract's hex address.
func (c *Client) ContractAddress() string {
	return c.contract.Hex()
}

// ---------------------------------------------------------------------------
// State-changing operations
// ---------------------------------------------------------------------------

// CreateRound submits a createRound transaction and returns the new round id
// parsed from the RoundCreated event.
func (c *Client) CreateRound(ctx context.Context, name string, endTime int64) (uint64, error) {
	receipt, err := c.transact(ctx, "createRound", nil, name, big.NewInt(endTime))
	if err != nil {
		return 0, fmt.Errorf("ledger: create round: %w", err)
	}

	topic := c.parsed.Events["RoundCreated"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) >= 2 && lg.Topics[0] == topic {
			return lg.Topics[1].Big().Uint64(), nil
		}
	}

	// Event missing (pruned logs); fall back to the counter.
	counter, err := c.RoundCounter(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: create round: resolve id: %w", err)
	}
	return counter - 1, nil
}

// PlaceBet submits a placeBet transaction escrowing valueWei.
func (c *Client) PlaceBet(ctx context.Context, roundID uint64, choiceHandle, amountHandle string, proof []byte, valueWei *big.Int) (string, error) {
	choice, err := hexToHandle(choiceHandle)
	if err != nil {
		return "", fmt.Errorf("ledger: choice handle: %w", err)
	}
	amount, err := hexToHandle(amountHandle)
	if err != nil {
		return "", fmt.Errorf("ledger: amount handle: %w", err)
	}

	receipt, err := c.transact(ctx, "placeBet", valueWei, new(big.Int).SetUint64(roundID), choice, amount, proof)
	if err != nil {
		return "", fmt.Errorf("ledger: place bet: %w", err)
	}
	return receipt.TxHash.Hex(), nil
}

// ResolveRound flips the resolved flag and makes the aggregates publicly
// decryptable.
func (c *Client) ResolveRound(ctx context.Context, roundID uint64) error {
	if _, err := c.transact(ctx, "resolveRound", nil, new(big.Int).SetUint64(roundID)); err != nil {
		return fmt.Errorf("ledger: resolve round %d: %w", roundID, err)
	}
	return nil
}

// AuthorizeParticipant grants participant decrypt permission on the round's
// aggregates. The contract treats repeated grants as no-ops.
func (c *Client) AuthorizeParticipant(ctx context.Context, roundID uint64, participant string) error {
	if _, err := c.transact(ctx, "authorizeParticipant", nil, new(big.Int).SetUint64(roundID), common.HexToAddress(participant)); err != nil {
		return fmt.Errorf("ledger: authorize participant: %w", err)
	}
	return nil
}

// ClaimReward submits the claim transaction. The ledger enforces
// at-most-once payout through its hasClaimed flag.
func (c *Client) ClaimReward(ctx context.Context, roundID uint64, rewardWei *big.Int, betUnits uint32, choice bool, winningSide bool, winningSideUnits uint64) error {
	_, err := c.transact(ctx, "claimReward", nil,
		new(big.Int).SetUint64(roundID),
		rewardWei,
		new(big.Int).SetUint64(uint64(betUnits)),
		choice,
		winningSide,
		new(big.Int).SetUint64(winningSideUnits),
	)
	if err != nil {
		return fmt.Errorf("ledger: claim reward: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// GetRoundInfo reads the round projection.
func (c *Client) GetRoundInfo(ctx context.Context, roundID uint64) (domain.Round, error) {
	out, err := c.call(ctx, "getRoundInfo", new(big.Int).SetUint64(roundID))
	if err != nil {
		return domain.Round{}, fmt.Errorf("ledger: get round info %d: %w", roundID, err)
	}
	if len(out) != 6 {
		return domain.Round{}, fmt.Errorf("ledger: getRoundInfo returned %d values", len(out))
	}

	id, _ := out[0].(*big.Int)
	creator, _ := out[1].(common.Address)
	name, _ := out[2].(string)
	endTime, _ := out[3].(*big.Int)
	resolved, _ := out[4].(bool)
	count, _ := out[5].(*big.Int)
	if id == nil || endTime == nil || count == nil {
		return domain.Round{}, fmt.Errorf("ledger: getRoundInfo returned malformed values")
	}

	return domain.Round{
		ID:               id.Uint64(),
		Creator:          creator.Hex(),
		Name:             name,
		EndTime:          time.Unix(endTime.Int64(), 0).UTC(),
		Resolved:         resolved,
		ParticipantCount: uint32(count.Uint64()),
	}, nil
}

func (c *Client) GetYesAmount(ctx context.Context, roundID uint64) (string, error) {
	return c.handleView(ctx, "getYesAmount", roundID)
}

func (c *Client) GetNoAmount(ctx context.Context, roundID uint64) (string, error) {
	return c.handleView(ctx, "getNoAmount", roundID)
}

func (c *Client) GetTotalAmount(ctx context.Context, roundID uint64) (string, error) {
	return c.handleView(ctx, "getTotalAmount", roundID)
}

// HasParticipated reports whether address has a bet in the round.
func (c *Client) HasParticipated(ctx context.Context, roundID uint64, address string) (bool, error) {
	out, err := c.call(ctx, "hasParticipated", new(big.Int).SetUint64(roundID), common.HexToAddress(address))
	if err != nil {
		return false, fmt.Errorf("ledger: has participated: %w", err)
	}
	b, _ := out[0].(bool)
	return b, nil
}

// GetUserBet returns the escrowed value and claimed flag for address.
func (c *Client) GetUserBet(ctx context.Context, roundID uint64, address string) (domain.UserBet, error) {
	out, err := c.call(ctx, "getUserBet", new(big.Int).SetUint64(roundID), common.HexToAddress(address))
	if err != nil {
		return domain.UserBet{}, fmt.Errorf("ledger: get user bet: %w", err)
	}
	if len(out) != 2 {
		return domain.UserBet{}, fmt.Errorf("ledger: getUserBet returned %d values", len(out))
	}
	amount, _ := out[0].(*big.Int)
	claimed, _ := out[1].(bool)
	if amount == nil {
		amount = new(big.Int)
	}
	return domain.UserBet{AmountWei: amount, HasClaimed: claimed}, nil
}

// GetRoundTotalPool returns the escrowed native total in wei.
func (c *Client) GetRoundTotalPool(ctx context.Context, roundID uint64) (*big.Int, error) {
	out, err := c.call(ctx, "getRoundTotalPool", new(big.Int).SetUint64(roundID))
	if err != nil {
		return nil, fmt.Errorf("ledger: get round total pool: %w", err)
	}
	pool, _ := out[0].(*big.Int)
	if pool == nil {
		pool = new(big.Int)
	}
	return pool, nil
}

// RoundCounter returns the number of rounds ever created.
func (c *Client) RoundCounter(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "roundCounter")
	if err != nil {
		return 0, fmt.Errorf("ledger: round counter: %w", err)
	}
	counter, _ := out[0].(*big.Int)
	if counter == nil {
		return 0, fmt.Errorf("ledger: roundCounter returned malformed value")
	}
	return counter.Uint64(), nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// handleView runs a view returning a bytes32 ciphertext handle.
func (c *Client) handleView(ctx context.Context, method string, roundID uint64) (string, error) {
	out, err := c.call(ctx, method, new(big.Int).SetUint64(roundID))
	if err != nil {
		return "", fmt.Errorf("ledger: %s: %w", method, err)
	}
	h, ok := out[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("ledger: %s returned non-bytes32 value", method)
	}
	return "0x" + hex.EncodeToString(h[:]), nil
}

// call executes a read-only contract method.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		if mapped := mapRevert(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("call %s: %v: %w", method, err, domain.ErrLedgerUnavailable)
	}

	out, err := c.parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty output", method)
	}
	return out, nil
}

// transact signs, submits, and waits for a state-changing method, returning
// the mined receipt. Reverts surface as domain sentinels.
func (c *Client) transact(ctx context.Context, method string, valueWei *big.Int, args ...any) (*types.Receipt, error) {
	data, err := c.parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	if valueWei == nil {
		valueWei = new(big.Int)
	}

	from := c.signer.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %v: %w", err, domain.ErrLedgerUnavailable)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %v: %w", err, domain.ErrLedgerUnavailable)
	}

	// Gas estimation doubles as a dry run: contract reverts surface here
	// with their reason, before any funds move.
	msg := ethereum.CallMsg{From: from, To: &c.contract, Value: valueWei, Data: data}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		if mapped := mapRevert(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("estimate gas: %v: %w", err, domain.ErrLedgerUnavailable)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    valueWei,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.signer.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		if mapped := mapRevert(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("send tx: %v: %w", err, domain.ErrLedgerUnavailable)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %v: %w", signed.Hash().Hex(), err, domain.ErrLedgerUnavailable)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// Replay the call at the mined block to recover the revert reason.
		if _, replayErr := c.eth.CallContract(ctx, msg, receipt.BlockNumber); replayErr != nil {
			if mapped := mapRevert(replayErr); mapped != replayErr {
				return nil, mapped
			}
			return nil, fmt.Errorf("tx %s reverted: %v", signed.Hash().Hex(), replayErr)
		}
		return nil, fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}

	return receipt, nil
}

// hexToHandle decodes a 0x-prefixed 32-byte ciphertext handle.
func hexToHandle(h string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil {
		return out, fmt.Errorf("invalid handle %q: %w", h, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("handle %q is %d bytes, want 32", h, len(b))
	}
	copy(out[:], b)
	return out, nil
}
