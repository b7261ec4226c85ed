package match

import (
	"context"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/rating"
)

type EventType string

const (
	EventMessage    EventType = "match_message"
	EventPrivate    EventType = "match_private"
	EventAlert      EventType = "match_alert"
	EventJoined     EventType = "match_joined"
	EventLeft       EventType = "match_left"
	EventHost       EventType = "match_host"
	EventConfigured EventType = "match_configured"
	EventStarted    EventType = "match_started"
	EventEliminated EventType = "match_eliminated"
	EventHooked     EventType = "match_hooked"
	EventDeduction  EventType = "match_deduction"
	EventInterrupt  EventType = "match_interrupt"
	EventOver       EventType = "match_over"
	EventAborted    EventType = "match_aborted"
	EventScores     EventType = "match_scores"
)

// Event is one outbound notification.
type Event struct {
	Type    EventType              `json:"type"`
	MatchID uuid.UUID              `json:"matchId"`
	Text    string                 `json:"text,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Messenger delivers events to users and rooms. Implementations must not block; matches
// call it with their lock held.
type Messenger interface {
	SendUser(uid uuid.UUID, ev Event)
	SendGroup(gid uuid.UUID, ev Event)
}

// Recorder persists finished matches and returns the per-player scores in the order of
// rec.Players.
type Recorder interface {
	RecordMatch(ctx context.Context, rec models.MatchRecord) ([]rating.ScoreInfo, error)
}

// Journal receives every serialized match event. Publish must not block.
type Journal interface {
	Publish(action models.MatchAction)
}

// audience is a snapshot of where a match's broadcasts go.
type audience struct {
	group uuid.UUID
	users []uuid.UUID
}

func (mg *Manager) deliver(a audience, ev Event) {
	if a.group != uuid.Nil {
		mg.messenger.SendGroup(a.group, ev)
		return
	}
	for _, uid := range a.users {
		mg.messenger.SendUser(uid, ev)
	}
}

type discard struct{}

func (discard) SendUser(uuid.UUID, Event)  {}
func (discard) SendGroup(uuid.UUID, Event) {}
