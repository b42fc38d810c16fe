package fhe

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
)

// recordingEncrypter captures the last encryption request.
type recordingEncrypter struct {
	calls        int
	contractAddr string
	userAddr     string
	amount       uint32
	choice       bool
}

func (r *recordingEncrypter) EncryptInput(_ context.Context, contractAddr, userAddr string, amount uint32, choice bool) (relayer.EncryptedInput, error) {
	r.calls++
	r.contractAddr = contractAddr
	r.userAddr = userAddr
	r.amount = amount
	r.choice = choice
	return relayer.EncryptedInput{
		AmountHandle: "0xaa",
		ChoiceHandle: "0xbb",
		Proof:        []byte("proof"),
	}, nil
}

func TestBuildDelegatesToEncrypter(t *testing.T) {
	enc := &recordingEncrypter{}
	b := NewInputBuilder(enc, "0xcontract")

	input, err := b.Build(context.Background(), "0xuser", 1234, true)
	require.NoError(t, err)

	assert.Equal(t, "0xaa", input.AmountHandle)
	assert.Equal(t, "0xbb", input.ChoiceHandle)
	assert.Equal(t, []byte("proof"), input.Proof)

	assert.Equal(t, "0xcontract", enc.contractAddr)
	assert.Equal(t, "0xuser", enc.userAddr)
	assert.Equal(t, uint32(1234), enc.amount)
	assert.True(t, enc.choice)
}

func TestBuildRejectsOutOfRangeAmounts(t *testing.T) {
	enc := &recordingEncrypter{}
	b := NewInputBuilder(enc, "0xcontract")

	for _, amount := range []int64{0, -1, math.MaxUint32 + 1} {
		_, err := b.Build(context.Background(), "0xuser", amount, false)
		assert.ErrorIs(t, err, domain.ErrInvalidPlaintext, "amount %d", amount)
	}
	assert.Zero(t, enc.calls, "invalid amounts must never reach the encrypter")
}

func TestBuildAcceptsBoundaryAmounts(t *testing.T) {
	enc := &recordingEncrypter{}
	b := NewInputBuilder(enc, "0xcontract")

	_, err := b.Build(context.Background(), "0xuser", 1, false)
	assert.NoError(t, err)

	_, err = b.Build(context.Background(), "0xuser", math.MaxUint32, false)
	assert.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), enc.amount)
}
