package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/stage"
)

// Status is a read-only snapshot of a match for listings.
type Status struct {
	ID          uuid.UUID      `json:"id"`
	Game        string         `json:"game"`
	GroupID     uuid.UUID      `json:"groupId"`
	State       string         `json:"state"`
	HostID      uuid.UUID      `json:"hostId"`
	Players     []PlayerStatus `json:"players"`
	BenchTo     int            `json:"benchTo"`
	Multiplier  int            `json:"multiplier"`
	Options     string         `json:"options"`
	SecondsLeft int            `json:"secondsLeft,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type PlayerStatus struct {
	Name     string    `json:"name"`
	UserID   uuid.UUID `json:"userId"`
	Computer bool      `json:"computer,omitempty"`
	State    string    `json:"state,omitempty"`
	Left     bool      `json:"left,omitempty"`
}

func (m *Match) Status() Status {
	m.lock()
	defer m.unlock()
	s := Status{
		ID:         m.ID,
		Game:       m.Game.Name,
		GroupID:    m.GroupID,
		State:      m.state.String(),
		HostID:     m.hostID,
		BenchTo:    m.benchTo,
		Multiplier: m.multiplier,
		Options:    m.options.Describe(),
		CreatedAt:  m.CreatedAt,
	}
	if !m.deadline.IsZero() {
		s.SecondsLeft = int(time.Until(m.deadline) / m.manager.opts.TimeUnit)
	}
	if m.players == nil {
		for _, mb := range m.members {
			s.Players = append(s.Players, PlayerStatus{Name: mb.Name, UserID: mb.ID})
		}
		return s
	}
	for pid, p := range m.players {
		ps := PlayerStatus{
			Name:  m.playerName(stage.PlayerID(pid)),
			State: p.State.String(),
		}
		if mb := m.seats[pid]; mb != nil {
			ps.UserID = mb.ID
			ps.Left = mb.left
		} else {
			ps.Computer = true
		}
		s.Players = append(s.Players, ps)
	}
	return s
}
