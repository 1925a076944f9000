package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strikelab/strikebot/internal/domain"
)

// ShadowStore implements domain.ShadowStore using PostgreSQL. The shadow log
// is append-only; rows are removed only through external archival.
type ShadowStore struct {
	pool *pgxpool.Pool
}

// NewShadowStore creates a ShadowStore backed by the given connection pool.
func NewShadowStore(pool *pgxpool.Pool) *ShadowStore {
	return &ShadowStore{pool: pool}
}

// Append inserts one shadow log entry.
func (s *ShadowStore) Append(ctx context.Context, entry *domain.ShadowLogEntry) error {
	skipReasons, err := json.Marshal(entry.SkipReasons)
	if err != nil {
		return fmt.Errorf("postgres: marshal skip reasons: %w", err)
	}

	var outcome, majority *string
	if entry.Outcome != nil {
		v := string(*entry.Outcome)
		outcome = &v
	}
	if entry.MajorityAtExecStart != nil {
		v := string(*entry.MajorityAtExecStart)
		majority = &v
	}

	const query = `
		INSERT INTO shadow_log (
			id, condition_id, question, asset, expired_at,
			strike, final_price, outcome, was_traded, ambiguous,
			total_snapshots, tight_ratio, avg_spread, final_yes_ask, final_no_ask,
			volatility, expected_move_exec_win, price_crossed_strike,
			min_distance_to_strike, max_distance_to_strike, momentum_last_seconds,
			reversal_detected, majority_at_exec_start, skip_reasons
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21,
			$22, $23, $24
		)`

	_, err = s.pool.Exec(ctx, query,
		entry.ID, entry.ConditionID, entry.Question, entry.Asset, entry.ExpiredAt,
		entry.Strike, entry.FinalPrice, outcome, entry.WasTraded, entry.Ambiguous,
		entry.TotalSnapshots, entry.TightRatio, entry.AvgSpread, entry.FinalYesAsk, entry.FinalNoAsk,
		entry.Volatility, entry.ExpectedMoveExecWin, entry.PriceCrossedStrike,
		entry.MinDistanceToStrike, entry.MaxDistanceToStrike, entry.MomentumLastSeconds,
		entry.ReversalDetected, majority, skipReasons,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert shadow entry: %w", err)
	}
	return nil
}

// ListBefore returns entries that expired before the cutoff, oldest first.
func (s *ShadowStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ShadowLogEntry, error) {
	const query = `
		SELECT
			id, condition_id, question, asset, expired_at,
			strike, final_price, outcome, was_traded, ambiguous,
			total_snapshots, tight_ratio, avg_spread, final_yes_ask, final_no_ask,
			volatility, expected_move_exec_win, price_crossed_strike,
			min_distance_to_strike, max_distance_to_strike, momentum_last_seconds,
			reversal_detected, majority_at_exec_start, skip_reasons
		FROM shadow_log
		WHERE expired_at < $1
		ORDER BY expired_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list shadow entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ShadowLogEntry
	for rows.Next() {
		var (
			entry       domain.ShadowLogEntry
			outcome     *string
			majority    *string
			skipReasons []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.ConditionID, &entry.Question, &entry.Asset, &entry.ExpiredAt,
			&entry.Strike, &entry.FinalPrice, &outcome, &entry.WasTraded, &entry.Ambiguous,
			&entry.TotalSnapshots, &entry.TightRatio, &entry.AvgSpread, &entry.FinalYesAsk, &entry.FinalNoAsk,
			&entry.Volatility, &entry.ExpectedMoveExecWin, &entry.PriceCrossedStrike,
			&entry.MinDistanceToStrike, &entry.MaxDistanceToStrike, &entry.MomentumLastSeconds,
			&entry.ReversalDetected, &majority, &skipReasons,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan shadow entry: %w", err)
		}
		if outcome != nil {
			v := domain.OutcomeSide(*outcome)
			entry.Outcome = &v
		}
		if majority != nil {
			v := domain.OutcomeSide(*majority)
			entry.MajorityAtExecStart = &v
		}
		if len(skipReasons) > 0 {
			if err := json.Unmarshal(skipReasons, &entry.SkipReasons); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal skip reasons: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
