package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
)

const defaultHistoryLimit = 50

type finishedRow struct {
	SourceID    string        `db:"source_id"`
	CommunityID int64         `db:"community_id"`
	ChannelID   int64         `db:"channel_id"`
	Prize       string        `db:"prize"`
	StartTime   time.Time     `db:"start_time"`
	EndTime     time.Time     `db:"end_time"`
	WinnerCount int           `db:"winner_count"`
	TotalWeight string        `db:"total_weight"`
	UserWeights []byte        `db:"user_weights"`
	Winners     pq.Int64Array `db:"winners"`
	CompletedAt time.Time     `db:"completed_at"`
}

type FinishedRepository struct {
	db *sqlx.DB
}

func NewFinishedRepository(db *sqlx.DB) *FinishedRepository {
	return &FinishedRepository{db: db}
}

// Save inserts the snapshot. A second save of the same source id is a no-op.
func (r *FinishedRepository) Save(ctx context.Context, g *models.FinishedGiveaway) error {
	row, err := toRow(g)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO finished_giveaways (source_id, community_id, channel_id, prize, start_time, end_time,
			winner_count, total_weight, user_weights, winners, completed_at)
		VALUES (:source_id, :community_id, :channel_id, :prize, :start_time, :end_time,
			:winner_count, :total_weight, :user_weights, :winners, :completed_at)
		ON CONFLICT (source_id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save finished giveaway %s: %w", g.SourceID, err)
	}
	return nil
}

func (r *FinishedRepository) Load(ctx context.Context, sourceID string) (*models.FinishedGiveaway, bool, error) {
	var row finishedRow
	query := `
		SELECT source_id, community_id, channel_id, prize, start_time, end_time,
			winner_count, total_weight, user_weights, winners, completed_at
		FROM finished_giveaways
		WHERE source_id = $1
	`
	err := r.db.GetContext(ctx, &row, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load finished giveaway %s: %w", sourceID, err)
	}

	g, err := fromRow(row)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// ListByCommunity returns the newest snapshots of the community first.
func (r *FinishedRepository) ListByCommunity(ctx context.Context, communityID int64, limit int) ([]*models.FinishedGiveaway, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var rows []finishedRow
	query := `
		SELECT source_id, community_id, channel_id, prize, start_time, end_time,
			winner_count, total_weight, user_weights, winners, completed_at
		FROM finished_giveaways
		WHERE community_id = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &rows, query, communityID, limit); err != nil {
		return nil, fmt.Errorf("failed to list finished giveaways of community %d: %w", communityID, err)
	}

	result := make([]*models.FinishedGiveaway, 0, len(rows))
	for _, row := range rows {
		g, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, nil
}

func toRow(g *models.FinishedGiveaway) (finishedRow, error) {
	weights, err := json.Marshal(g.UserWeights)
	if err != nil {
		return finishedRow{}, fmt.Errorf("failed to marshal user weights: %w", err)
	}
	total := "0"
	if g.TotalWeight != nil {
		total = g.TotalWeight.String()
	}
	winners := pq.Int64Array(g.Winners)
	if winners == nil {
		winners = pq.Int64Array{}
	}
	return finishedRow{
		SourceID:    g.SourceID,
		CommunityID: g.CommunityID,
		ChannelID:   g.ChannelID,
		Prize:       g.Prize,
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
		WinnerCount: g.WinnerCount,
		TotalWeight: total,
		UserWeights: weights,
		Winners:     winners,
		CompletedAt: g.CompletedAt,
	}, nil
}

func fromRow(row finishedRow) (*models.FinishedGiveaway, error) {
	total, ok := new(big.Int).SetString(row.TotalWeight, 10)
	if !ok {
		return nil, fmt.Errorf("invalid total weight %q for %s", row.TotalWeight, row.SourceID)
	}

	weights := make(map[int64]*big.Int)
	if len(row.UserWeights) > 0 {
		if err := json.Unmarshal(row.UserWeights, &weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user weights of %s: %w", row.SourceID, err)
		}
	}

	winners := []int64(row.Winners)
	if winners == nil {
		winners = []int64{}
	}
	return &models.FinishedGiveaway{
		SourceID:    row.SourceID,
		CommunityID: row.CommunityID,
		ChannelID:   row.ChannelID,
		Prize:       row.Prize,
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		WinnerCount: row.WinnerCount,
		TotalWeight: total,
		UserWeights: weights,
		Winners:     winners,
		CompletedAt: row.CompletedAt,
	}, nil
}
