package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// memBlob is an in-memory blob store implementing both sides of the
// archiver's storage dependency.
type memBlob struct {
	objects    map[string][]byte
	puts       int
	multiparts int
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = buf
	m.puts++
	return nil
}

func (m *memBlob) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = buf
	m.multiparts++
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, buf := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type stubRounds struct{ rounds []domain.Round }

func (s stubRounds) ListRounds(context.Context) ([]domain.Round, error) { return s.rounds, nil }

type stubResults struct {
	results map[uint64]domain.RoundResult
	calls   int
}

func (s *stubResults) Reveal(_ context.Context, roundID uint64) (domain.RoundResult, error) {
	s.calls++
	return s.results[roundID], nil
}

type stubBets struct{ records []domain.BetRecord }

func (s stubBets) ListBefore(context.Context, time.Time) ([]domain.BetRecord, error) {
	return s.records, nil
}

func TestArchiveSettledRounds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	blob := newMemBlob()
	rounds := stubRounds{rounds: []domain.Round{
		{ID: 0, Resolved: true, EndTime: now.Add(-48 * time.Hour)},
		{ID: 1, Resolved: false, EndTime: now.Add(-24 * time.Hour)}, // not resolved
		{ID: 2, Resolved: true, EndTime: now.Add(24 * time.Hour)},   // ends after cutoff
	}}
	results := &stubResults{results: map[uint64]domain.RoundResult{
		0: {RoundID: 0, YesUnits: 2000, NoUnits: 1500, Winner: domain.WinnerYes},
	}}

	a := NewArchiver(blob, blob, rounds, results, nil)

	count, err := a.ArchiveSettledRounds(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	buf, ok := blob.objects["archive/rounds/000000.json"]
	require.True(t, ok, "settled round must land at its id-derived key")

	var settled SettledRound
	require.NoError(t, json.Unmarshal(buf, &settled))
	assert.Equal(t, domain.WinnerYes, settled.Result.Winner)
	assert.Equal(t, uint64(2000), settled.Result.YesUnits)
}

func TestArchiveSettledRoundsIsIdempotent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	blob := newMemBlob()
	rounds := stubRounds{rounds: []domain.Round{
		{ID: 7, Resolved: true, EndTime: now.Add(-time.Hour)},
	}}
	results := &stubResults{results: map[uint64]domain.RoundResult{7: {RoundID: 7}}}

	a := NewArchiver(blob, blob, rounds, results, nil)

	for i := 0; i < 3; i++ {
		_, err := a.ArchiveSettledRounds(context.Background(), now)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, blob.puts, "re-runs must skip already-archived rounds")
	assert.Equal(t, 1, results.calls, "skipped rounds are not re-revealed")
}

func TestArchiveBets(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	blob := newMemBlob()
	bets := stubBets{records: []domain.BetRecord{
		{RoundID: 1, Participant: "0xabc", AmountUnits: 500, Choice: true},
		{RoundID: 2, Participant: "0xabc", AmountUnits: 250, Choice: false},
	}}

	a := NewArchiver(blob, blob, stubRounds{}, &stubResults{}, bets)

	count, err := a.ArchiveBets(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	buf, ok := blob.objects["archive/bets/2026-09.jsonl"]
	require.True(t, ok, "bets archive is partitioned by cutoff month")
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	assert.Len(t, lines, 2, "one JSON document per record")
}

func TestArchiveBetsNothingToDo(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, blob, stubRounds{}, &stubResults{}, stubBets{})

	count, err := a.ArchiveBets(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, blob.puts)
}
