// Package fhe builds encrypted bet inputs: it turns a plaintext
// (amount, choice) pair into ciphertext handles plus a proof blob bound to
// the betting contract and the submitting address.
package fhe

import (
	"context"
	"fmt"
	"math"

	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
)

// Encrypter is the slice of the relayer client the builder needs.
type Encrypter interface {
	EncryptInput(ctx context.Context, contractAddr, userAddr string, amount uint32, choice bool) (relayer.EncryptedInput, error)
}

// BetInput is an encrypted (amount, choice) pair ready for submission to the
// ledger. The handles are only valid for the (contract, user) pair they were
// built for; replaying them elsewhere fails proof verification.
type BetInput struct {
	AmountHandle string
	ChoiceHandle string
	Proof        []byte
}

// InputBuilder validates plaintext bets and delegates encryption to the
// relayer. Stateless; safe for concurrent use.
type InputBuilder struct {
	enc          Encrypter
	contractAddr string
}

// NewInputBuilder creates an InputBuilder targeting the given contract.
func NewInputBuilder(enc Encrypter, contractAddr string) *InputBuilder {
	return &InputBuilder{enc: enc, contractAddr: contractAddr}
}

// Build encrypts amountUnits and choice for submission by userAddr.
// amountUnits must be positive and fit the 32-bit encrypted integer domain;
// violations are rejected with domain.ErrInvalidPlaintext before any network
// call.
func (b *InputBuilder) Build(ctx context.Context, userAddr string, amountUnits int64, choice bool) (BetInput, error) {
	if amountUnits <= 0 || amountUnits > math.MaxUint32 {
		return BetInput{}, fmt.Errorf("fhe: amount %d out of range: %w", amountUnits, domain.ErrInvalidPlaintext)
	}

	enc, err := b.enc.EncryptInput(ctx, b.contractAddr, userAddr, uint32(amountUnits), choice)
	if err != nil {
		return BetInput{}, fmt.Errorf("fhe: encrypt input: %w", err)
	}

	return BetInput{
		AmountHandle: enc.AmountHandle,
		ChoiceHandle: enc.ChoiceHandle,
		Proof:        enc.Proof,
	}, nil
}
