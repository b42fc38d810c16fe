package domain

import "errors"

// Validation errors: bad caller input, rejected before any network call.
var (
	ErrEndTimeInPast    = errors.New("end time must be in the future")
	ErrInvalidPlaintext = errors.New("bet amount must be a positive 32-bit integer")
	ErrNoLocalBet       = errors.New("no local bet record for this round")
)

// State conflicts: the ledger refused the operation because of the round's
// current state. Never retried automatically.
var (
	ErrNotFound         = errors.New("not found")
	ErrRoundNotFound    = errors.New("round does not exist")
	ErrRoundEnded       = errors.New("round has ended")
	ErrRoundResolved    = errors.New("round already resolved")
	ErrRoundStillOpen   = errors.New("round has not ended yet")
	ErrAlreadyResolved  = errors.New("round already resolved, resolve is a no-op")
	ErrRoundNotResolved = errors.New("round not resolved yet")
	ErrNotAParticipant  = errors.New("address did not participate in round")
	ErrAlreadyClaimed   = errors.New("reward already claimed")
	ErrNotAWinner       = errors.New("bet is not on the winning side")
)

// Network failures: the ledger or the decryption backend could not be
// reached. Callers may retry.
var (
	ErrLedgerUnavailable  = errors.New("ledger unreachable")
	ErrBackendUnreachable = errors.New("decryption backend unreachable")
)

// Authorization and protocol failures during reveal.
var (
	ErrAuthorizationDenied = errors.New("decryption authorization denied")
	ErrMalformedResponse   = errors.New("decryption response missing requested handle")
)

// ErrLockHeld is returned when a distributed lock is already held by
// another process.
var ErrLockHeld = errors.New("lock already held")

// IsStateConflict reports whether err is a round/claim state conflict that
// retrying cannot fix.
func IsStateConflict(err error) bool {
	for _, target := range []error{
		ErrRoundNotFound, ErrRoundEnded, ErrRoundResolved, ErrRoundStillOpen,
		ErrAlreadyResolved, ErrRoundNotResolved, ErrNotAParticipant,
		ErrAlreadyClaimed, ErrNotAWinner, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is a transient network or authorization
// failure where the caller's funds are unaffected and a retry may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable) ||
		errors.Is(err, ErrBackendUnreachable) ||
		errors.Is(err, ErrAuthorizationDenied)
}

// Friendly renders err as a user-facing message distinguishing "your funds
// are safe, try again" from "this action is not possible".
func Friendly(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRetryable(err):
		return "Temporary failure: " + err.Error() + ". Your funds are safe; please try again."
	case IsStateConflict(err):
		return "This action is not possible: " + err.Error() + "."
	default:
		return err.Error()
	}
}
