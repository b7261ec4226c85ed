package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/game"
	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/stage"
	"github.com/jason-s-yu/parlor/internal/timer"
)

// State is a match's lifecycle position. It only ever moves forward.
type State int

const (
	NotStarted State = iota
	Started
	Over
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Over:
		return "over"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Match is one session of a game. Every entry point takes the match lock for its whole
// duration, so requests, timeouts and departures reach the stage tree one at a time.
type Match struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Game      game.Info
	CreatedAt time.Time

	manager *Manager
	game    game.Game
	log     logrus.FieldLogger

	mu         sync.Mutex
	state      State
	hostID     uuid.UUID
	members    []*member
	options    game.Options
	benchTo    int
	multiplier int

	// set at start
	players  []Player
	seats    []*member
	session  game.Session
	root     stage.Stage
	timer    *timer.Handle
	alert    stage.AlertFunc
	deadline time.Time

	dirty       bool
	inDeduction bool
	actions     int
	pending     *conclusion
}

// conclusion is the work left once a match is over. It runs after the lock is released.
type conclusion struct {
	record   *models.MatchRecord
	audience audience
}

func newMatch(mg *Manager, g game.Game, host UserInfo, groupID uuid.UUID) *Match {
	id, _ := uuid.NewV7()
	info := g.Info()
	return &Match{
		ID:         id,
		GroupID:    groupID,
		Game:       info,
		CreatedAt:  time.Now(),
		manager:    mg,
		game:       g,
		log:        mg.log.WithFields(logrus.Fields{"match_id": id, "game": info.Name}),
		hostID:     host.ID,
		members:    []*member{{UserInfo: host, seat: -1}},
		options:    g.NewOptions(),
		multiplier: 1,
	}
}

func (m *Match) lock() {
	m.mu.Lock()
}

// unlock releases the match and then runs the conclusion of a match that ended while
// the lock was held.
func (m *Match) unlock() {
	c := m.pending
	m.pending = nil
	m.mu.Unlock()
	if c != nil {
		m.conclude(c)
	}
}

func (m *Match) State() State {
	m.lock()
	defer m.unlock()
	return m.state
}

func (m *Match) HostID() uuid.UUID {
	m.lock()
	defer m.unlock()
	return m.hostID
}

// Players returns a copy of the seats of a started match.
func (m *Match) Players() []Player {
	m.lock()
	defer m.unlock()
	out := make([]Player, len(m.players))
	copy(out, m.players)
	return out
}

// Join adds a user to a match that has not started yet.
func (m *Match) Join(u UserInfo) error {
	m.lock()
	defer m.unlock()
	switch m.state {
	case Started:
		return ErrAlreadyStarted
	case Over:
		return ErrMatchOver
	}
	if m.member(u.ID) != nil {
		return ErrAlreadyInMatch
	}
	if m.Game.MaxPlayers > 0 && len(m.members) >= m.Game.MaxPlayers {
		return ErrPlayerCap
	}
	if err := m.manager.bind(u.ID, m); err != nil {
		return err
	}
	m.members = append(m.members, &member{UserInfo: u, seat: -1})
	m.journal("join", u.ID, nil)
	m.broadcast(Event{
		Type:    EventJoined,
		Text:    fmt.Sprintf("%s joined the match.", u.Name),
		Payload: map[string]interface{}{"userId": u.ID, "name": u.Name},
	})
	return nil
}

// Leave removes a user. Before the start the user simply leaves the roster; afterwards force
// is required and the seat stays, played by the computer policy from then on.
func (m *Match) Leave(uid uuid.UUID, force bool) error {
	m.lock()
	defer m.unlock()
	mb := m.member(uid)
	if mb == nil || mb.left {
		return ErrNotInMatch
	}
	switch m.state {
	case Over:
		return ErrMatchOver
	case NotStarted:
		m.leaveRoster(mb)
		return nil
	}
	if !force {
		return ErrForceRequired
	}

	mb.left = true
	mb.wantsInterrupt = false
	m.manager.unbind(uid, m)
	m.journal("leave", uid, map[string]interface{}{"force": true})
	m.broadcast(Event{
		Type:    EventLeft,
		Text:    fmt.Sprintf("%s left the match.", mb.Name),
		Payload: map[string]interface{}{"userId": uid, "name": mb.Name},
	})
	m.log.WithField("user_id", uid).Info("Player force-left the match")

	if m.allLeft() {
		m.abort("Every player left the match.")
		return nil
	}
	pid := mb.seat
	m.dispatch("leave", func() stage.Result { return m.root.HandleLeave(pid) })
	return nil
}

func (m *Match) leaveRoster(mb *member) {
	for i, cur := range m.members {
		if cur == mb {
			m.members = append(m.members[:i], m.members[i+1:]...)
			break
		}
	}
	m.manager.unbind(mb.ID, m)
	m.journal("leave", mb.ID, nil)
	m.manager.messenger.SendUser(mb.ID, Event{Type: EventLeft, MatchID: m.ID, Text: "You left the match."})

	if len(m.members) == 0 {
		m.abort("The match was dissolved.")
		return
	}
	m.broadcast(Event{
		Type:    EventLeft,
		Text:    fmt.Sprintf("%s left the match.", mb.Name),
		Payload: map[string]interface{}{"userId": mb.ID, "name": mb.Name},
	})
	if mb.ID == m.hostID {
		next := m.members[0]
		m.hostID = next.ID
		m.broadcast(Event{
			Type:    EventHost,
			Text:    fmt.Sprintf("%s is now the host.", next.Name),
			Payload: map[string]interface{}{"userId": next.ID},
		})
	}
}

// SetBenchTo fills the match up to n seats with computer players at start.
func (m *Match) SetBenchTo(uid uuid.UUID, n int) error {
	m.lock()
	defer m.unlock()
	if err := m.hostCheck(uid); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: bench size %d", ErrInvalidConfig, n)
	}
	if m.Game.MaxPlayers > 0 && n > m.Game.MaxPlayers {
		return ErrPlayerCap
	}
	m.benchTo = n
	m.announceConfig(fmt.Sprintf("Computer players will fill the match up to %d seats.", n))
	return nil
}

// SetMultiplier sets the stake weight of the match; 0 makes it unranked.
func (m *Match) SetMultiplier(uid uuid.UUID, n int) error {
	m.lock()
	defer m.unlock()
	if err := m.hostCheck(uid); err != nil {
		return err
	}
	if n < 0 || n > m.manager.opts.MaxMultiplier {
		return fmt.Errorf("%w: multiplier must be between 0 and %d", ErrInvalidConfig, m.manager.opts.MaxMultiplier)
	}
	m.multiplier = n
	m.announceConfig(fmt.Sprintf("The score multiplier is now %d.", n))
	return nil
}

// Configure sets one game option.
func (m *Match) Configure(uid uuid.UUID, key, value string) error {
	m.lock()
	defer m.unlock()
	if err := m.hostCheck(uid); err != nil {
		return err
	}
	if err := m.options.Set(key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	m.announceConfig(m.options.Describe())
	return nil
}

func (m *Match) announceConfig(text string) {
	m.journal("configure", m.hostID, map[string]interface{}{"text": text})
	m.broadcast(Event{Type: EventConfigured, Text: text})
}

func (m *Match) hostCheck(uid uuid.UUID) error {
	switch m.state {
	case Started:
		return ErrAlreadyStarted
	case Over:
		return ErrMatchOver
	}
	if m.member(uid) == nil {
		return ErrNotInMatch
	}
	if uid != m.hostID {
		return ErrNotHost
	}
	return nil
}

// Start seats the humans in join order, appends computer seats up to the bench size and
// begins the root stage.
func (m *Match) Start(uid uuid.UUID) error {
	m.lock()
	defer m.unlock()
	if err := m.hostCheck(uid); err != nil {
		return err
	}
	total := max(len(m.members), m.benchTo)
	if m.Game.MaxPlayers > 0 && total > m.Game.MaxPlayers {
		return ErrPlayerCap
	}
	if total < m.Game.MinPlayers {
		return fmt.Errorf("%w: %s needs at least %d", ErrTooFewPlayers, m.Game.Name, m.Game.MinPlayers)
	}

	players := make([]Player, 0, total)
	seats := make([]*member, 0, total)
	for i, mb := range m.members {
		mb.seat = stage.PlayerID(i)
		players = append(players, Player{Identity: UserIdentity{ID: mb.ID}})
		seats = append(seats, mb)
	}
	for i := 0; len(players) < total; i++ {
		players = append(players, Player{Identity: ComputerIdentity{Index: i}})
		seats = append(seats, nil)
	}
	m.players, m.seats = players, seats

	session, err := m.game.NewSession(host{m}, m.options, total)
	if err != nil {
		m.players, m.seats = nil, nil
		for _, mb := range m.members {
			mb.seat = -1
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	m.session = session
	m.root = session.Root()
	m.state = Started

	names := make([]string, total)
	for pid := range m.players {
		names[pid] = m.playerName(stage.PlayerID(pid))
	}
	m.journal("start", uid, map[string]interface{}{"players": names, "multiplier": m.multiplier})
	m.broadcast(Event{
		Type:    EventStarted,
		Text:    fmt.Sprintf("The match of %s has started.", m.Game.Name),
		Payload: map[string]interface{}{"players": names, "options": m.options.Describe()},
	})
	m.log.WithField("players", total).Info("Match started")

	m.dispatch("start", func() stage.Result {
		m.root.OnBegin()
		return stage.OK
	})
	return nil
}

// Request forwards raw text from a participant to the stage tree. A hooked player is
// reactivated first.
func (m *Match) Request(uid uuid.UUID, public bool, text string) (stage.Result, error) {
	m.lock()
	defer m.unlock()
	switch m.state {
	case NotStarted:
		return stage.NotFound, ErrNotStarted
	case Over:
		return stage.NotFound, ErrMatchOver
	}
	mb := m.member(uid)
	if mb == nil || mb.left {
		return stage.NotFound, ErrNotInMatch
	}
	pid := mb.seat
	switch m.players[pid].State {
	case stage.Eliminated:
		return stage.NotFound, ErrEliminated
	case stage.Hooked:
		m.activate(pid)
	}

	m.journal("request", uid, map[string]interface{}{"text": text, "public": public})
	res := m.dispatch("request", func() stage.Result { return m.root.HandleRequest(pid, public, text) })
	return res, nil
}

// Interrupt sets or revokes a participant's vote to abandon the match. The match is
// aborted without recording once every eligible participant voted.
func (m *Match) Interrupt(uid uuid.UUID, want bool) error {
	m.lock()
	defer m.unlock()
	switch m.state {
	case NotStarted:
		return ErrNotStarted
	case Over:
		return ErrMatchOver
	}
	mb := m.member(uid)
	if mb == nil || mb.left {
		return ErrNotInMatch
	}
	if m.players[mb.seat].State == stage.Eliminated {
		return ErrEliminated
	}
	mb.wantsInterrupt = want
	m.journal("interrupt", uid, map[string]interface{}{"want": want})

	votes, eligible := m.interruptVotes()
	m.broadcast(Event{
		Type:    EventInterrupt,
		Text:    fmt.Sprintf("%d of %d players want to stop the match.", votes, eligible),
		Payload: map[string]interface{}{"votes": votes, "eligible": eligible},
	})
	m.checkInterrupt()
	return nil
}

// Terminate aborts the match without recording it.
func (m *Match) Terminate(reason string) {
	m.lock()
	defer m.unlock()
	m.abort(reason)
}

func (m *Match) interruptVotes() (votes, eligible int) {
	for _, mb := range m.members {
		if mb.left || mb.seat < 0 || m.players[mb.seat].State == stage.Eliminated {
			continue
		}
		eligible++
		if mb.wantsInterrupt {
			votes++
		}
	}
	return votes, eligible
}

func (m *Match) checkInterrupt() {
	if m.state != Started {
		return
	}
	if votes, eligible := m.interruptVotes(); eligible > 0 && votes == eligible {
		m.log.Info("Match interrupted by consensus")
		m.abort("The match was stopped by agreement of all players.")
	}
}

func (m *Match) member(uid uuid.UUID) *member {
	for _, mb := range m.members {
		if mb.ID == uid {
			return mb
		}
	}
	return nil
}

func (m *Match) allLeft() bool {
	for _, mb := range m.members {
		if !mb.left {
			return false
		}
	}
	return true
}

// audience snapshots where broadcasts currently go: the room, or every participant who has
// not left.
func (m *Match) audience() audience {
	a := audience{group: m.GroupID}
	if a.group != uuid.Nil {
		return a
	}
	for _, mb := range m.members {
		if !mb.left {
			a.users = append(a.users, mb.ID)
		}
	}
	return a
}

func (m *Match) broadcast(ev Event) {
	ev.MatchID = m.ID
	m.manager.deliver(m.audience(), ev)
}

func (m *Match) journal(kind string, actor uuid.UUID, payload map[string]interface{}) {
	j := m.manager.journal
	if j == nil {
		return
	}
	j.Publish(models.MatchAction{
		MatchID:       m.ID,
		ActionIndex:   m.actions,
		ActorUserID:   actor,
		ActionType:    kind,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	})
	m.actions++
}
