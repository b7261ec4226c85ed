package models

import "github.com/google/uuid"

// MatchAction is one serialized match event as it travels through the journal queue to the
// historian. ActorUserID is uuid.Nil for events no user caused (timeouts, computer turns).
type MatchAction struct {
	MatchID       uuid.UUID              `json:"match_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}
