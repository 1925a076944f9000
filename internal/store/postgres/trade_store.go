package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strikelab/strikebot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, condition_id, question, asset, fired_at,
	yes_ask, no_ask, side, amount_per_side, total_cost, metrics,
	success, order_ids, error, dry_run,
	outcome, final_price, payout, net_return, return_pct, ambiguous, resolved_at`

// Create inserts a freshly fired trade record with empty resolution columns.
func (s *TradeStore) Create(ctx context.Context, rec *domain.TradeRecord) error {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal trade metrics: %w", err)
	}

	const query = `
		INSERT INTO trade_records (
			id, condition_id, question, asset, fired_at,
			yes_ask, no_ask, side, amount_per_side, total_cost, metrics,
			success, order_ids, error, dry_run
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15
		)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.ConditionID, rec.Question, rec.Asset, rec.FiredAt,
		rec.YesAsk, rec.NoAsk, string(rec.Side), rec.AmountPerSide, rec.TotalCost, metrics,
		rec.Success, rec.OrderIDs, rec.Error, rec.DryRun,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade record: %w", err)
	}
	return nil
}

// UpdateResolution fills the resolution columns of every still-pending record
// for the contract. Already-resolved rows are untouched.
func (s *TradeStore) UpdateResolution(ctx context.Context, conditionID string, res *domain.Resolution) (int64, error) {
	const query = `
		UPDATE trade_records SET
			outcome = $2,
			final_price = $3,
			payout = $4,
			net_return = $5,
			return_pct = $6,
			ambiguous = $7,
			resolved_at = $8
		WHERE condition_id = $1 AND resolved_at IS NULL`

	tag, err := s.pool.Exec(ctx, query,
		conditionID,
		string(res.Outcome), res.FinalPrice, res.Payout,
		res.NetReturn, res.ReturnPct, res.Ambiguous, res.ResolvedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: update resolution: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPending returns fired records with empty resolution columns, oldest
// first.
func (s *TradeStore) ListPending(ctx context.Context) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + `
		FROM trade_records
		WHERE resolved_at IS NULL
		ORDER BY fired_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending trades: %w", err)
	}
	defer rows.Close()

	return scanTradeRows(rows)
}

// ListByContract returns all records for a contract, oldest first.
func (s *TradeStore) ListByContract(ctx context.Context, conditionID string) ([]*domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + `
		FROM trade_records
		WHERE condition_id = $1
		ORDER BY fired_at ASC`

	rows, err := s.pool.Query(ctx, query, conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by contract: %w", err)
	}
	defer rows.Close()

	return scanTradeRows(rows)
}

func scanTradeRows(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var recs []*domain.TradeRecord
	for rows.Next() {
		var (
			rec        domain.TradeRecord
			side       string
			metrics    []byte
			outcome    *string
			finalPrice *float64
			payout     *float64
			netReturn  *float64
			returnPct  *float64
			ambiguous  bool
			resolvedAt *time.Time
		)
		if err := rows.Scan(
			&rec.ID, &rec.ConditionID, &rec.Question, &rec.Asset, &rec.FiredAt,
			&rec.YesAsk, &rec.NoAsk, &side, &rec.AmountPerSide, &rec.TotalCost, &metrics,
			&rec.Success, &rec.OrderIDs, &rec.Error, &rec.DryRun,
			&outcome, &finalPrice, &payout, &netReturn, &returnPct, &ambiguous, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade record: %w", err)
		}
		rec.Side = domain.OutcomeSide(side)
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal trade metrics: %w", err)
			}
		}
		if resolvedAt != nil {
			res := &domain.Resolution{
				Ambiguous:  ambiguous,
				ResolvedAt: *resolvedAt,
			}
			if outcome != nil {
				res.Outcome = domain.OutcomeSide(*outcome)
			}
			if finalPrice != nil {
				res.FinalPrice = *finalPrice
			}
			if payout != nil {
				res.Payout = *payout
			}
			if netReturn != nil {
				res.NetReturn = *netReturn
			}
			if returnPct != nil {
				res.ReturnPct = *returnPct
			}
			rec.Resolution = res
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
