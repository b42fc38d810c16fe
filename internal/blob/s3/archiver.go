package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// Narrow interfaces: the archiver only needs the read methods it calls, not
// the full service or store surfaces.

// RoundSource lists every round known to the ledger.
type RoundSource interface {
	ListRounds(ctx context.Context) ([]domain.Round, error)
}

// ResultSource produces the decrypted outcome of a resolved round.
type ResultSource interface {
	Reveal(ctx context.Context, roundID uint64) (domain.RoundResult, error)
}

// BetArchiveStore provides read access to bet records for archival.
type BetArchiveStore interface {
	// ListBefore returns all bet records created strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.BetRecord, error)
}

// SettledRound is the archived shape: the final round projection together
// with its decrypted outcome.
type SettledRound struct {
	Round  domain.Round       `json:"round"`
	Result domain.RoundResult `json:"result"`
}

// Archiver snapshots settled rounds and old bet records to cold storage.
// Per-round objects are written once and skipped on re-runs, so the archive
// mode can run on a schedule without re-uploading history.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	rounds RoundSource
	result ResultSource
	bets   BetArchiveStore
}

// NewArchiver creates an Archiver. bets may be nil when no local store is
// configured; ArchiveBets then archives nothing.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	rounds RoundSource,
	result ResultSource,
	bets BetArchiveStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		rounds: rounds,
		result: result,
		bets:   bets,
	}
}

// ArchiveSettledRounds uploads one JSON object per resolved round whose
// betting window closed before the cutoff, at archive/rounds/{id}.json.
// Already-archived rounds are skipped. Returns the number uploaded.
func (a *Archiver) ArchiveSettledRounds(ctx context.Context, before time.Time) (int64, error) {
	rounds, err := a.rounds.ListRounds(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}

	var count int64
	for _, round := range rounds {
		if !round.Resolved || !round.EndTime.Before(before) {
			continue
		}

		path := roundPath(round.ID)
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d: %w", round.ID, err)
		}
		if exists {
			continue
		}

		result, err := a.result.Reveal(ctx, round.ID)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d reveal: %w", round.ID, err)
		}

		buf, err := json.Marshal(SettledRound{Round: round, Result: result})
		if err != nil {
			return count, fmt.Errorf("s3blob: archive round %d marshal: %w", round.ID, err)
		}
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
			return count, fmt.Errorf("s3blob: archive round %d upload: %w", round.ID, err)
		}
		count++
	}
	return count, nil
}

// ArchiveBets serialises all bet records created before the cutoff to JSONL
// and uploads them at archive/bets/YYYY-MM.jsonl, using a multipart upload
// when the payload is large. Returns the number of records archived.
func (a *Archiver) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	if a.bets == nil {
		return 0, nil
	}

	records, err := a.bets.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if int64(len(buf)) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}
	return int64(len(records)), nil
}

// roundPath builds the S3 key for a settled round snapshot.
//
//	archive/rounds/000042.json
func roundPath(roundID uint64) string {
	return fmt.Sprintf("archive/rounds/%06d.json", roundID)
}

// archivePath builds the S3 key for a monthly archive file, partitioned by
// the year-month of the cutoff time.
//
//	archive/bets/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
