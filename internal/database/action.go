package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jason-s-yu/parlor/internal/models"
)

// Action types that close a match in the log.
const (
	ActionEnd   = "end"
	ActionAbort = "abort"
)

// InsertMatchActions writes a batch of journal entries in one transaction. The match row is
// created on first sight; an end or abort entry closes it. Replayed entries are ignored.
func InsertMatchActions(ctx context.Context, pool *pgxpool.Pool, actions []models.MatchAction) error {
	if len(actions) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range actions {
			if err := insertMatchActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("action %s/%d: %w", rec.MatchID, rec.ActionIndex, err)
			}
		}
		return nil
	})
}

func insertMatchActionTx(ctx context.Context, tx pgx.Tx, rec models.MatchAction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO matches (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING`, rec.MatchID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	var actor *uuid.UUID
	if rec.ActorUserID != uuid.Nil {
		actor = &rec.ActorUserID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO match_actions (match_id, action_index, actor_user_id, action_type, action_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, action_index) DO NOTHING`,
		rec.MatchID, rec.ActionIndex, actor, rec.ActionType, payload, time.UnixMilli(rec.Timestamp),
	)
	if err != nil {
		return err
	}

	var status string
	switch rec.ActionType {
	case ActionEnd:
		status = "completed"
	case ActionAbort:
		status = "aborted"
	default:
		return nil
	}
	_, err = tx.Exec(ctx, `
		UPDATE matches SET status = $2, end_time = COALESCE(end_time, NOW())
		WHERE id = $1 AND status = 'in_progress'`, rec.MatchID, status)
	return err
}

// MarkMatchAbandoned closes a match that is still in progress. It reports whether a row
// changed.
func MarkMatchAbandoned(ctx context.Context, pool *pgxpool.Pool, matchID uuid.UUID) (bool, error) {
	var changed bool
	err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE matches SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'`, matchID)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() > 0
		return nil
	})
	return changed, err
}
