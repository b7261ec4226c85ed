package models

import "github.com/google/uuid"

// MatchRecord is what a finished match hands to persistence. Players holds human players
// only, in seat order.
type MatchRecord struct {
	MatchID    uuid.UUID      `json:"match_id"`
	GameName   string         `json:"game_name"`
	GroupID    uuid.NullUUID  `json:"group_id"`
	HostID     uuid.UUID      `json:"host_id"`
	Multiplier int            `json:"multiplier"`
	Players    []PlayerResult `json:"players"`
}

type PlayerResult struct {
	UserID       uuid.UUID `json:"user_id"`
	Score        int64     `json:"score"`
	Achievements []string  `json:"achievements,omitempty"`
}
