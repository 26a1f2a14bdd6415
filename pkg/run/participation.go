package run

import "github.com/Meridian-Labs/poolrun/pkg/apperrors"

// MaxVoteRounds bounds the periodic voting rounds per run. One percent of
// bonus per correct vote yields at most a 12% bonus.
const MaxVoteRounds = 12

// ErrInvalidVoteStats indicates vote counters that violate the reporting
// contract (correct > total, or more rounds than the system runs).
var ErrInvalidVoteStats = apperrors.New(apperrors.CodeInvalidVoteStats, "vote counters are inconsistent or exceed the round limit")

// Participation is the per-(run, participant) accounting record. Exactly one
// exists per pair; it is created on deposit and never deleted.
type Participation struct {
	Participant   string `json:"participant"`
	RunID         uint64 `json:"run_id"`
	DepositAmount uint64 `json:"deposit_amount"`
	FinalShare    uint64 `json:"final_share"`
	Withdrawn     bool   `json:"withdrawn"`
	CorrectVotes  uint8  `json:"correct_votes"`
	TotalVotes    uint8  `json:"total_votes"`
}

// NewParticipation creates the record written when a deposit is accepted.
// Vote and withdrawal fields start zeroed.
func NewParticipation(runID uint64, participant string, amount uint64) Participation {
	return Participation{
		Participant:   participant,
		RunID:         runID,
		DepositAmount: amount,
	}
}

// SetVoteStats overwrites the cumulative vote counters. Callers submit
// cumulative totals each round, not deltas.
func (p Participation) SetVoteStats(correct, total uint8) (Participation, error) {
	if correct > total || total > MaxVoteRounds {
		return Participation{}, ErrInvalidVoteStats
	}
	p.CorrectVotes = correct
	p.TotalVotes = total
	return p, nil
}
