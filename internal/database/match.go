package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/rating"
)

// Recorder persists finished matches and keeps each player's per-game history.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// HistoricalStats is the number of recorded matches of game a user played and the sum of
// their level scores over them.
func (r *Recorder) HistoricalStats(ctx context.Context, userID uuid.UUID, game string) (int, float64, error) {
	return historicalStats(ctx, r.pool, userID, game)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func historicalStats(ctx context.Context, q querier, userID uuid.UUID, game string) (int, float64, error) {
	var count int
	var sum float64
	err := q.QueryRow(ctx,
		`SELECT match_count, level_score_sum FROM user_game_stats WHERE user_id=$1 AND game_name=$2`,
		userID, game,
	).Scan(&count, &sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return count, sum, nil
}

// RecordMatch scores rec against each player's history and stores everything in one
// transaction. The returned scores follow the order of rec.Players.
func (r *Recorder) RecordMatch(ctx context.Context, rec models.MatchRecord) ([]rating.ScoreInfo, error) {
	var infos []rating.ScoreInfo
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		n := len(rec.Players)
		raw := make([]int64, n)
		counts := make([]int, n)
		sums := make([]float64, n)
		for i, p := range rec.Players {
			c, s, err := historicalStats(ctx, tx, p.UserID, rec.GameName)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", p.UserID, err)
			}
			raw[i], counts[i], sums[i] = p.Score, c, s
		}
		infos = rating.Calculate(raw, counts, sums, rec.Multiplier)

		_, err := tx.Exec(ctx, `
			INSERT INTO matches (id, game_name, group_id, host_id, multiplier, status, end_time)
			VALUES ($1, $2, $3, $4, $5, 'completed', NOW())
			ON CONFLICT (id) DO UPDATE
			SET game_name = $2, group_id = $3, host_id = $4, multiplier = $5,
			    status = 'completed', end_time = NOW()`,
			rec.MatchID, rec.GameName, rec.GroupID, rec.HostID, rec.Multiplier,
		)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		for i, p := range rec.Players {
			info := infos[i]
			_, err := tx.Exec(ctx, `
				INSERT INTO match_players (match_id, user_id, seat, game_score, zero_sum_score, top_score, level_score)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				rec.MatchID, p.UserID, i, info.GameScore, info.ZeroSumScore, info.TopScore, info.LevelScore,
			)
			if err != nil {
				return fmt.Errorf("insert player %s: %w", p.UserID, err)
			}
			for _, a := range p.Achievements {
				_, err := tx.Exec(ctx, `
					INSERT INTO match_achievements (match_id, user_id, achievement)
					VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
					rec.MatchID, p.UserID, a,
				)
				if err != nil {
					return fmt.Errorf("insert achievement %q: %w", a, err)
				}
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO user_game_stats (user_id, game_name, match_count, level_score_sum)
				VALUES ($1, $2, 1, $3)
				ON CONFLICT (user_id, game_name) DO UPDATE
				SET match_count = user_game_stats.match_count + 1,
				    level_score_sum = user_game_stats.level_score_sum + $3`,
				p.UserID, rec.GameName, info.LevelScore,
			)
			if err != nil {
				return fmt.Errorf("bump stats for %s: %w", p.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record match %s: %w", rec.MatchID, err)
	}
	return infos, nil
}
