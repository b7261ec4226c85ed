package match

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/stage"
)

// turnsPerActor bounds one convergence pass: a pass that needs more than this many turns per
// computer-controlled seat is treated as a game that never settles.
const turnsPerActor = 1000

// dispatch delivers one event to the stage tree, lets the computer players respond and ends
// the match if the root checked out. A panic raised by game code aborts this match only.
func (m *Match) dispatch(event string, fn func() stage.Result) (res stage.Result) {
	res = stage.Failed
	m.guard(event, func() {
		res = fn()
		m.settle()
	})
	if m.state != Started {
		return res
	}
	if m.root.IsOver() {
		m.finish()
		return res
	}
	m.checkInterrupt()
	return res
}

func (m *Match) guard(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.fail(event, r)
		}
	}()
	fn()
}

func (m *Match) fail(event string, r interface{}) {
	entry := m.log.WithFields(logrus.Fields{"event": event, "panic": r})
	var se *stage.StructuralError
	if err, ok := r.(error); !ok || !errors.As(err, &se) {
		entry = entry.WithField("stack", string(debug.Stack()))
	}
	entry.Error("Structural error, aborting match")
	m.abort("The match was aborted because of an internal error.")
}

// settle alternates re-checking the active stage after player states changed with
// convergence passes until neither produces anything new.
func (m *Match) settle() {
	limit := 4*len(m.players) + 4
	for i := 0; !m.root.IsOver(); i++ {
		if i > limit {
			stage.Fail(m.root.Name(), "player states did not settle")
		}
		if m.dirty {
			m.dirty = false
			m.root.Reconcile()
			continue
		}
		m.routine()
		if !m.dirty {
			return
		}
	}
}

// routine cycles round-robin through the computer seats and the seats of departed humans,
// letting each act, until a full pass changes nothing or the root checks out.
func (m *Match) routine() {
	var actors []stage.PlayerID
	for pid := range m.players {
		if m.policyControlled(stage.PlayerID(pid)) {
			actors = append(actors, stage.PlayerID(pid))
		}
	}
	n := len(actors)
	if n == 0 {
		return
	}
	limit := turnsPerActor * n
	streak := 0
	for turn := 0; streak < n && !m.root.IsOver(); turn++ {
		if turn >= limit {
			stage.Fail(m.root.Name(), "computer players still acting after %d turns", limit)
		}
		pid := actors[turn%n]
		if m.players[pid].State == stage.Eliminated {
			streak++
			continue
		}
		asIfUser := m.seats[pid] != nil
		if r := m.root.HandleComputerAct(pid, asIfUser); r == stage.OK {
			streak++
		} else {
			streak = 0
		}
	}
}

func (m *Match) policyControlled(pid stage.PlayerID) bool {
	mb := m.seats[pid]
	return mb == nil || mb.left
}

// finish ends a match whose root checked out and queues the result for recording.
func (m *Match) finish() {
	if m.state == Over {
		return
	}
	m.state = Over
	m.stopTimer()
	m.manager.detach(m)

	standings := make([]map[string]interface{}, len(m.players))
	scores := make([]int64, len(m.players))
	for pid := range m.players {
		id := stage.PlayerID(pid)
		scores[pid] = m.session.Score(id)
		standings[pid] = map[string]interface{}{
			"name":     m.playerName(id),
			"score":    scores[pid],
			"computer": m.seats[pid] == nil,
		}
	}
	m.journal("end", uuid.Nil, map[string]interface{}{"scores": scores})
	m.broadcast(Event{
		Type:    EventOver,
		Text:    "The match is over.",
		Payload: map[string]interface{}{"standings": standings},
	})
	m.log.Info("Match over")
	m.pending = &conclusion{record: m.buildRecord(scores), audience: m.audience()}
}

// buildRecord returns nil for matches that are not recorded: unranked ones and those with
// fewer than two human players.
func (m *Match) buildRecord(scores []int64) *models.MatchRecord {
	if m.multiplier == 0 {
		return nil
	}
	rec := &models.MatchRecord{
		MatchID:    m.ID,
		GameName:   m.Game.Name,
		HostID:     m.hostID,
		Multiplier: m.multiplier,
	}
	if m.GroupID != uuid.Nil {
		rec.GroupID = uuid.NullUUID{UUID: m.GroupID, Valid: true}
	}
	for pid, mb := range m.seats {
		if mb == nil {
			continue
		}
		rec.Players = append(rec.Players, models.PlayerResult{
			UserID:       mb.ID,
			Score:        scores[pid],
			Achievements: m.session.Achievements(stage.PlayerID(pid)),
		})
	}
	if len(rec.Players) < 2 {
		return nil
	}
	return rec
}

// abort ends the match without recording it.
func (m *Match) abort(reason string) {
	if m.state == Over {
		return
	}
	m.state = Over
	m.stopTimer()
	m.manager.detach(m)
	m.journal("abort", uuid.Nil, map[string]interface{}{"reason": reason})
	m.broadcast(Event{Type: EventAborted, Text: reason})
	m.log.WithField("reason", reason).Info("Match aborted")
	m.pending = &conclusion{audience: m.audience()}
}

// PlayerScore is one human's recorded result.
type PlayerScore struct {
	UserID       uuid.UUID `json:"userId"`
	GameScore    int64     `json:"gameScore"`
	ZeroSumScore float64   `json:"zeroSumScore"`
	TopScore     float64   `json:"topScore"`
	LevelScore   float64   `json:"levelScore"`
	Achievements []string  `json:"achievements,omitempty"`
}

// conclude runs without the match lock and records and announces the result. The match
// already left the lookup tables when it ended.
func (m *Match) conclude(c *conclusion) {
	if c.record == nil || m.manager.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.manager.opts.RecordTimeout)
	defer cancel()
	infos, err := m.manager.recorder.RecordMatch(ctx, *c.record)
	if err != nil {
		m.log.WithError(err).Error("Failed to record match")
		return
	}
	if len(infos) != len(c.record.Players) {
		m.log.Errorf("Recorder returned %d scores for %d players", len(infos), len(c.record.Players))
		return
	}
	scores := make([]PlayerScore, len(infos))
	for i, info := range infos {
		p := c.record.Players[i]
		scores[i] = PlayerScore{
			UserID:       p.UserID,
			GameScore:    info.GameScore,
			ZeroSumScore: info.ZeroSumScore,
			TopScore:     info.TopScore,
			LevelScore:   info.LevelScore,
			Achievements: p.Achievements,
		}
	}
	m.manager.deliver(c.audience, Event{
		Type:    EventScores,
		MatchID: m.ID,
		Text:    fmt.Sprintf("Scores recorded with multiplier %d.", c.record.Multiplier),
		Payload: map[string]interface{}{"scores": scores},
	})
}
