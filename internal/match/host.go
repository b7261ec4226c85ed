package match

import (
	"fmt"
	"time"
	"weak"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/stage"
	"github.com/jason-s-yu/parlor/internal/timer"
)

// host is the view of a match its stage tree gets. The match lock is always held when a
// stage calls in.
type host struct {
	m *Match
}

var _ stage.Host = host{}

func (h host) Broadcast(msg string) {
	h.m.broadcast(Event{Type: EventMessage, Text: msg})
}

func (h host) Tell(pid stage.PlayerID, msg string) {
	h.m.tell(pid, Event{Type: EventPrivate, Text: msg})
}

// BroadcastToGroupOnly posts to the room; a private match has no room and drops it.
func (h host) BroadcastToGroupOnly(msg string) {
	if h.m.GroupID == uuid.Nil {
		h.m.log.Debug("Dropped room-only message in a private match")
		return
	}
	h.m.manager.messenger.SendGroup(h.m.GroupID, Event{Type: EventMessage, MatchID: h.m.ID, Text: msg})
}

func (h host) StartTimer(seconds int, alert stage.AlertFunc) { h.m.startTimer(seconds, alert) }
func (h host) StopTimer()                                    { h.m.stopTimer() }

func (h host) Eliminate(pid stage.PlayerID) { h.m.eliminate(pid) }
func (h host) Hook(pid stage.PlayerID)      { h.m.hook(pid) }
func (h host) Activate(pid stage.PlayerID)  { h.m.activate(pid) }

func (h host) PlayerCount() int { return len(h.m.players) }

func (h host) PlayerState(pid stage.PlayerID) stage.PlayerState {
	return h.m.players[pid].State
}

func (h host) IsComputer(pid stage.PlayerID) bool {
	_, ok := h.m.players[pid].Identity.(ComputerIdentity)
	return ok
}

func (h host) PlayerName(pid stage.PlayerID) string { return h.m.playerName(pid) }

func (h host) PlayerAvatar(pid stage.PlayerID) string {
	switch id := h.m.players[pid].Identity.(type) {
	case UserIdentity:
		return h.m.seats[pid].Avatar
	case ComputerIdentity:
		return ""
	default:
		panic(fmt.Sprintf("unknown identity %T", id))
	}
}

func (m *Match) playerName(pid stage.PlayerID) string {
	switch id := m.players[pid].Identity.(type) {
	case UserIdentity:
		return m.seats[pid].Name
	case ComputerIdentity:
		return computerName(id.Index)
	default:
		panic(fmt.Sprintf("unknown identity %T", id))
	}
}

// tell sends privately to the human in seat pid unless they left.
func (m *Match) tell(pid stage.PlayerID, ev Event) {
	mb := m.seats[pid]
	if mb == nil || mb.left {
		return
	}
	ev.MatchID = m.ID
	m.manager.messenger.SendUser(mb.ID, ev)
}

// eliminate is permanent. Once only computer-controlled seats remain active the match is
// announced as being in deduction.
func (m *Match) eliminate(pid stage.PlayerID) {
	p := &m.players[pid]
	if p.State == stage.Eliminated {
		return
	}
	p.State = stage.Eliminated
	m.dirty = true
	if mb := m.seats[pid]; mb != nil {
		mb.wantsInterrupt = false
	}
	name := m.playerName(pid)
	m.journal("eliminate", uuid.Nil, map[string]interface{}{"player": int(pid)})
	m.tell(pid, Event{Type: EventEliminated, Text: "You have been eliminated."})
	m.broadcast(Event{
		Type:    EventEliminated,
		Text:    fmt.Sprintf("%s has been eliminated.", name),
		Payload: map[string]interface{}{"player": int(pid), "name": name},
	})

	if m.inDeduction {
		return
	}
	for i := range m.players {
		if m.players[i].State != stage.Eliminated && !m.policyControlled(stage.PlayerID(i)) {
			return
		}
	}
	m.inDeduction = true
	m.broadcast(Event{Type: EventDeduction, Text: "Only computer players remain; the match plays out on its own."})
}

func (m *Match) hook(pid stage.PlayerID) {
	p := &m.players[pid]
	if p.State != stage.Active {
		return
	}
	p.State = stage.Hooked
	m.dirty = true
	m.tell(pid, Event{Type: EventHooked, Text: "You have been marked away. Send anything to rejoin the game."})
}

func (m *Match) activate(pid stage.PlayerID) {
	p := &m.players[pid]
	if p.State != stage.Hooked {
		return
	}
	p.State = stage.Active
	m.tell(pid, Event{Type: EventPrivate, Text: "Welcome back."})
}

// startTimer replaces any outstanding cascade. The cascade goroutine only holds a weak
// reference, so a match dropped from every table is not kept alive by its timer.
func (m *Match) startTimer(seconds int, alert stage.AlertFunc) {
	m.stopTimer()
	unit := m.manager.opts.TimeUnit
	total := time.Duration(seconds) * unit
	steps := timer.Cascade(total, time.Duration(m.manager.opts.AlertGranularity)*unit)

	m.alert = alert
	m.deadline = time.Now().Add(total)
	ref := weak.Make(m)
	m.timer = timer.Start(steps, func() timer.Target {
		if mm := ref.Value(); mm != nil {
			return timerTarget{mm}
		}
		return nil
	})
}

func (m *Match) stopTimer() {
	if m.timer == nil {
		return
	}
	m.timer.Cancel()
	m.timer = nil
	m.alert = nil
	m.deadline = time.Time{}
}

type timerTarget struct {
	m *Match
}

func (t timerTarget) Lock()   { t.m.lock() }
func (t timerTarget) Unlock() { t.m.unlock() }

func (t timerTarget) Fire(h *timer.Handle, s timer.Step) {
	t.m.onTimer(h, s)
}

func (m *Match) onTimer(h *timer.Handle, s timer.Step) {
	if h != m.timer || m.state != Started {
		m.log.Debug("Ignored stale timer step")
		return
	}
	switch s.Kind {
	case timer.Alert:
		sec := int(s.Remaining / m.manager.opts.TimeUnit)
		if m.alert != nil {
			alert := m.alert
			m.guard("alert", func() { alert(sec) })
			return
		}
		m.broadcast(Event{
			Type:    EventAlert,
			Text:    fmt.Sprintf("%d seconds remaining.", sec),
			Payload: map[string]interface{}{"seconds": sec},
		})
	case timer.Timeout:
		m.timer = nil
		m.alert = nil
		m.deadline = time.Time{}
		m.journal("timeout", uuid.Nil, nil)
		m.dispatch("timeout", m.root.HandleTimeout)
	}
}
