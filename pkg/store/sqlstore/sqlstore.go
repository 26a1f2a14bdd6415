// Package sqlstore implements store.Store over database/sql. It supports
// both SQLite (modernc.org/sqlite) and Postgres (lib/pq) via $N placeholders,
// which both drivers accept.
//
// Amounts are persisted as signed 64-bit integers, the practical limit of
// both backends; the arithmetic core still computes in the full uint64 range.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/platform"
	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS platform (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	authority TEXT NOT NULL,
	fee_bps INTEGER NOT NULL,
	total_runs INTEGER NOT NULL,
	is_paused INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id INTEGER PRIMARY KEY,
	authority TEXT NOT NULL,
	status TEXT NOT NULL,
	total_deposited INTEGER NOT NULL,
	final_balance INTEGER NOT NULL,
	participant_count INTEGER NOT NULL,
	min_deposit INTEGER NOT NULL,
	max_deposit INTEGER NOT NULL,
	max_participants INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT '',
	ended_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS participations (
	run_id INTEGER NOT NULL,
	participant TEXT NOT NULL,
	deposit_amount INTEGER NOT NULL,
	final_share INTEGER NOT NULL,
	withdrawn INTEGER NOT NULL,
	correct_votes INTEGER NOT NULL,
	total_votes INTEGER NOT NULL,
	PRIMARY KEY (run_id, participant)
);
`

// Store is a SQL-backed store.Store.
type Store struct {
	db *sql.DB
}

// New wraps a database handle and runs schema migration.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}

// CreatePlatform implements store.PlatformStore. The CHECK(id = 1) constraint
// makes a second initialization structurally impossible.
func (s *Store) CreatePlatform(ctx context.Context, p platform.Platform) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform (id, authority, fee_bps, total_runs, is_paused, created_at)
		 VALUES (1, $1, $2, $3, $4, $5)`,
		p.Authority, int64(p.FeeBps), int64(p.TotalRuns), boolToInt(p.Paused), formatTime(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetPlatform implements store.PlatformStore.
func (s *Store) GetPlatform(ctx context.Context) (platform.Platform, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT authority, fee_bps, total_runs, is_paused, created_at FROM platform WHERE id = 1`)

	var (
		p         platform.Platform
		feeBps    int64
		totalRuns int64
		paused    int64
		createdAt string
	)
	if err := row.Scan(&p.Authority, &feeBps, &totalRuns, &paused, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return platform.Platform{}, store.ErrNotFound
		}
		return platform.Platform{}, err
	}
	p.FeeBps = uint16(feeBps)
	p.TotalRuns = uint64(totalRuns)
	p.Paused = paused != 0
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// UpdatePlatform implements store.PlatformStore.
func (s *Store) UpdatePlatform(ctx context.Context, p platform.Platform) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE platform SET authority = $1, fee_bps = $2, total_runs = $3, is_paused = $4 WHERE id = 1`,
		p.Authority, int64(p.FeeBps), int64(p.TotalRuns), boolToInt(p.Paused),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CreateRun implements store.RunStore.
func (s *Store) CreateRun(ctx context.Context, r run.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, authority, status, total_deposited, final_balance,
		 participant_count, min_deposit, max_deposit, max_participants, created_at, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		int64(r.RunID), r.Authority, string(r.Status), int64(r.TotalDeposited), int64(r.FinalBalance),
		int64(r.ParticipantCount), int64(r.MinDeposit), int64(r.MaxDeposit), int64(r.MaxParticipants),
		formatTime(r.CreatedAt), formatTime(r.StartedAt), formatTime(r.EndedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(ctx context.Context, runID uint64) (run.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, authority, status, total_deposited, final_balance, participant_count,
		 min_deposit, max_deposit, max_participants, created_at, started_at, ended_at
		 FROM runs WHERE run_id = $1`, int64(runID))
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run.Run{}, store.ErrNotFound
		}
		return run.Run{}, err
	}
	return r, nil
}

// UpdateRun implements store.RunStore.
func (s *Store) UpdateRun(ctx context.Context, r run.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = $1, total_deposited = $2, final_balance = $3,
		 participant_count = $4, started_at = $5, ended_at = $6 WHERE run_id = $7`,
		string(r.Status), int64(r.TotalDeposited), int64(r.FinalBalance),
		int64(r.ParticipantCount), formatTime(r.StartedAt), formatTime(r.EndedAt), int64(r.RunID),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context) ([]run.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, authority, status, total_deposited, final_balance, participant_count,
		 min_deposit, max_deposit, max_participants, created_at, started_at, ended_at
		 FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateParticipation implements store.ParticipationStore. The composite
// primary key rejects double deposits structurally.
func (s *Store) CreateParticipation(ctx context.Context, p run.Participation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participations (run_id, participant, deposit_amount, final_share,
		 withdrawn, correct_votes, total_votes) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(p.RunID), p.Participant, int64(p.DepositAmount), int64(p.FinalShare),
		boolToInt(p.Withdrawn), int64(p.CorrectVotes), int64(p.TotalVotes),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// GetParticipation implements store.ParticipationStore.
func (s *Store) GetParticipation(ctx context.Context, runID uint64, participant string) (run.Participation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, participant, deposit_amount, final_share, withdrawn, correct_votes, total_votes
		 FROM participations WHERE run_id = $1 AND participant = $2`, int64(runID), participant)
	p, err := scanParticipation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run.Participation{}, store.ErrNotFound
		}
		return run.Participation{}, err
	}
	return p, nil
}

// ListParticipations implements store.ParticipationStore.
func (s *Store) ListParticipations(ctx context.Context, runID uint64) ([]run.Participation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, participant, deposit_amount, final_share, withdrawn, correct_votes, total_votes
		 FROM participations WHERE run_id = $1 ORDER BY participant`, int64(runID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []run.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateVoteStats implements store.ParticipationStore.
func (s *Store) UpdateVoteStats(ctx context.Context, runID uint64, participant string, correct, total uint8) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participations SET correct_votes = $1, total_votes = $2
		 WHERE run_id = $3 AND participant = $4`,
		int64(correct), int64(total), int64(runID), participant,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkWithdrawn implements store.ParticipationStore. The WHERE withdrawn = 0
// clause is the compare-and-set: a concurrent duplicate sees zero affected
// rows and fails without touching the record.
func (s *Store) MarkWithdrawn(ctx context.Context, runID uint64, participant string, finalShare uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participations SET withdrawn = 1, final_share = $1
		 WHERE run_id = $2 AND participant = $3 AND withdrawn = 0`,
		int64(finalShare), int64(runID), participant,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing record from a duplicate withdrawal.
		if _, err := s.GetParticipation(ctx, runID, participant); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrAlreadyWithdrawn
	}
	return nil
}

// DeleteParticipation implements store.ParticipationStore.
func (s *Store) DeleteParticipation(ctx context.Context, runID uint64, participant string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM participations WHERE run_id = $1 AND participant = $2`,
		int64(runID), participant,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (run.Run, error) {
	var (
		r                               run.Run
		runID, deposited, final         int64
		count, minDep, maxDep, maxParts int64
		createdAt, startedAt, endedAt   string
	)
	err := row.Scan(&runID, &r.Authority, (*string)(&r.Status), &deposited, &final,
		&count, &minDep, &maxDep, &maxParts, &createdAt, &startedAt, &endedAt)
	if err != nil {
		return run.Run{}, err
	}
	r.RunID = uint64(runID)
	r.TotalDeposited = uint64(deposited)
	r.FinalBalance = uint64(final)
	r.ParticipantCount = uint16(count)
	r.MinDeposit = uint64(minDep)
	r.MaxDeposit = uint64(maxDep)
	r.MaxParticipants = uint16(maxParts)
	r.CreatedAt = parseTime(createdAt)
	r.StartedAt = parseTime(startedAt)
	r.EndedAt = parseTime(endedAt)
	return r, nil
}

func scanParticipation(row rowScanner) (run.Participation, error) {
	var (
		p                       run.Participation
		runID, deposit, share   int64
		withdrawn, correct, tot int64
	)
	err := row.Scan(&runID, &p.Participant, &deposit, &share, &withdrawn, &correct, &tot)
	if err != nil {
		return run.Participation{}, err
	}
	p.RunID = uint64(runID)
	p.DepositAmount = uint64(deposit)
	p.FinalShare = uint64(share)
	p.Withdrawn = withdrawn != 0
	p.CorrectVotes = uint8(correct)
	p.TotalVotes = uint8(tot)
	return p, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// isUniqueViolation detects primary-key collisions across both drivers by
// message inspection; neither database/sql nor the drivers share a typed
// error for this.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // modernc sqlite
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "duplicate key value") // lib/pq
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
