package services

import (
	"fmt"

	"quest-battle-service/models"
)

// WinnerMultiplier scales the winner's approved XP into ledger credit.
const WinnerMultiplier = 2

// Outcome is the decision for one battle, computed from daily records only.
type Outcome struct {
	ChallengerXP     int64 // approved sums
	ChallengedXP     int64
	WinnerID         *string
	ChallengerCredit int64 // ledger credits after the multiplier
	ChallengedCredit int64
	ChallengerReason models.ActivityReason
	ChallengedReason models.ActivityReason

	ChallengerPending int // records still waiting on verification
	ChallengedPending int
}

func (o Outcome) IsTie() bool { return o.WinnerID == nil }

// ComputeOutcome sums APPROVED xp per participant and picks the winner.
// PENDING and REJECTED records count for nothing. Records belonging to
// anyone other than the two participants are an error.
func ComputeOutcome(b *models.Battle, records []models.DailyRecord) (Outcome, error) {
	var o Outcome
	for _, r := range records {
		var sum *int64
		var pending *int
		switch r.UserID {
		case b.ChallengerID:
			sum, pending = &o.ChallengerXP, &o.ChallengerPending
		case b.ChallengedID:
			sum, pending = &o.ChallengedXP, &o.ChallengedPending
		default:
			return Outcome{}, fmt.Errorf("daily record %s belongs to %q, not a participant of battle %s", r.ID, r.UserID, b.ID)
		}

		switch r.Verification {
		case models.VerificationApproved:
			if r.XPAwarded > 0 {
				*sum += r.XPAwarded
			}
		case models.VerificationPending:
			*pending++
		case models.VerificationRejected:
		default:
			return Outcome{}, fmt.Errorf("daily record %s has unknown verification %q", r.ID, r.Verification)
		}
	}

	switch {
	case o.ChallengerXP > o.ChallengedXP:
		winner := b.ChallengerID
		o.WinnerID = &winner
		o.ChallengerCredit = o.ChallengerXP * WinnerMultiplier
		o.ChallengedCredit = o.ChallengedXP
		o.ChallengerReason = models.ReasonBattleWon
		o.ChallengedReason = models.ReasonBattleLost
	case o.ChallengedXP > o.ChallengerXP:
		winner := b.ChallengedID
		o.WinnerID = &winner
		o.ChallengerCredit = o.ChallengerXP
		o.ChallengedCredit = o.ChallengedXP * WinnerMultiplier
		o.ChallengerReason = models.ReasonBattleLost
		o.ChallengedReason = models.ReasonBattleWon
	default:
		o.ChallengerCredit = o.ChallengerXP
		o.ChallengedCredit = o.ChallengedXP
		o.ChallengerReason = models.ReasonBattleTie
		o.ChallengedReason = models.ReasonBattleTie
	}
	return o, nil
}
