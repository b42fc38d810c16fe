package ledger

import (
	"strings"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// encryptedBetABI is the application binary interface of the EncryptedBet
// contract. Encrypted aggregate types (euint32/ebool) travel as bytes32
// ciphertext handles.
const encryptedBetABI = `[
  {"type":"function","name":"createRound","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"endTime","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"placeBet","stateMutability":"payable","inputs":[{"name":"roundId","type":"uint256"},{"name":"choice","type":"bytes32"},{"name":"encryptedAmount","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"resolveRound","stateMutability":"nonpayable","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"authorizeParticipant","stateMutability":"nonpayable","inputs":[{"name":"roundId","type":"uint256"},{"name":"participant","type":"address"}],"outputs":[]},
  {"type":"function","name":"claimReward","stateMutability":"nonpayable","inputs":[{"name":"roundId","type":"uint256"},{"name":"rewardAmount","type":"uint256"},{"name":"userBetAmountInUnits","type":"uint256"},{"name":"userChoice","type":"bool"},{"name":"winningSide","type":"bool"},{"name":"winningSideTotalInUnits","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getRoundInfo","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"},{"name":"creator","type":"address"},{"name":"name","type":"string"},{"name":"endTime","type":"uint256"},{"name":"resolved","type":"bool"},{"name":"participantCount","type":"uint256"}]},
  {"type":"function","name":"getYesAmount","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getNoAmount","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getTotalAmount","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"hasParticipated","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"},{"name":"participant","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getUserBet","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"},{"name":"participant","type":"address"}],"outputs":[{"name":"ethAmount","type":"uint256"},{"name":"hasClaimed","type":"bool"}]},
  {"type":"function","name":"getRoundTotalPool","stateMutability":"view","inputs":[{"name":"roundId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"roundCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"RoundCreated","inputs":[{"name":"roundId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"name","type":"string","indexed":false},{"name":"endTime","type":"uint256","indexed":false}]},
  {"type":"event","name":"BetPlaced","inputs":[{"name":"roundId","type":"uint256","indexed":true},{"name":"participant","type":"address","indexed":true}]},
  {"type":"event","name":"RoundResolved","inputs":[{"name":"roundId","type":"uint256","indexed":true},{"name":"winner","type":"bool","indexed":false},{"name":"yesAmount","type":"uint256","indexed":false},{"name":"noAmount","type":"uint256","indexed":false}]}
]`

// Contract revert reasons, verbatim from the EncryptedBet require strings.
var revertToDomain = map[string]error{
	"Round does not exist":    domain.ErrRoundNotFound,
	"Round has ended":         domain.ErrRoundEnded,
	"Round already resolved":  domain.ErrRoundResolved,
	"Round has not ended yet": domain.ErrRoundStillOpen,
	"Round not resolved":      domain.ErrRoundNotResolved,
	"Did not participate":     domain.ErrNotAParticipant,
	"Already claimed":         domain.ErrAlreadyClaimed,
	"Not a winner":            domain.ErrNotAWinner,
}

// mapRevert converts a revert reason embedded in err into the matching
// domain sentinel. Unrecognized reverts pass through unchanged.
func mapRevert(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for reason, sentinel := range revertToDomain {
		if strings.Contains(msg, reason) {
			return sentinel
		}
	}
	return err
}
