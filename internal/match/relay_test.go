package match

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/game"
	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/rating"
	"github.com/jason-s-yu/parlor/internal/stage"
)

// relay is a test game: a composite "match" of "turn" stages. Computers only act once a
// human acted in the same turn.
type relay struct {
	min, max int
	sessions []*relaySession
}

func (g *relay) Info() game.Info {
	return game.Info{Name: "relay", MinPlayers: g.min, MaxPlayers: g.max}
}

func (g *relay) NewOptions() game.Options { return &relayOptions{rounds: 1} }

func (g *relay) NewSession(h stage.Host, opts game.Options, n int) (game.Session, error) {
	o := *opts.(*relayOptions)
	if o.failSession {
		return nil, fmt.Errorf("cannot seat %d players", n)
	}
	s := &relaySession{
		host:          h,
		opts:          o,
		acts:          make([]int, n),
		computerCalls: make([]int, n),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	s.root = stage.NewComposite(h, "match", s, "turn")
	g.sessions = append(g.sessions, s)
	return s, nil
}

type relayOptions struct {
	rounds      int
	timeout     int
	instant     bool
	restless    bool
	failSession bool
	quitOnLeave bool
}

func (o *relayOptions) Set(key, value string) error {
	switch key {
	case "rounds", "timeout":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative number", key)
		}
		if key == "rounds" {
			o.rounds = n
		} else {
			o.timeout = n
		}
	case "instant":
		o.instant = value == "true"
	case "restless":
		o.restless = value == "true"
	case "fail":
		o.failSession = value == "true"
	case "quit":
		o.quitOnLeave = value == "true"
	default:
		return fmt.Errorf("%q: %w", key, game.ErrUnknownOption)
	}
	return nil
}

func (o *relayOptions) Describe() string {
	return fmt.Sprintf("rounds=%d timeout=%d", o.rounds, o.timeout)
}

type relaySession struct {
	stage.DefaultComposite
	host stage.Host
	opts relayOptions
	root *stage.Composite

	played        int
	reasons       []stage.CheckoutReason
	acts          []int
	computerCalls []int
	timeouts      int
	entered       chan struct{}
	release       chan struct{}
}

func (s *relaySession) Root() stage.Stage { return s.root }

func (s *relaySession) Score(pid stage.PlayerID) int64 { return int64(s.acts[pid]) }

func (s *relaySession) Achievements(pid stage.PlayerID) []string {
	if s.acts[pid] > 0 {
		return []string{"acted"}
	}
	return nil
}

func (s *relaySession) FirstStage(c *stage.Composite) stage.Stage {
	return stage.NewAtomic(s.host, "turn", &turn{s: s})
}

func (s *relaySession) NextStage(c *stage.Composite, finished stage.Stage, reason stage.CheckoutReason) stage.Stage {
	s.played++
	s.reasons = append(s.reasons, reason)
	if s.played >= s.opts.rounds {
		return nil
	}
	return stage.NewAtomic(s.host, "turn", &turn{s: s})
}

type turn struct {
	stage.DefaultAtomic
	s          *relaySession
	humanActed bool
}

func (t *turn) OnBegin(a *stage.Atomic) {
	if t.s.opts.instant {
		a.Checkout()
		return
	}
	if t.s.opts.timeout > 0 {
		a.StartTimer(t.s.opts.timeout)
	}
}

func (t *turn) HandleRequest(a *stage.Atomic, pid stage.PlayerID, public bool, msg string) stage.Result {
	cmd, arg, _ := strings.Cut(msg, " ")
	switch cmd {
	case "act":
		if a.IsReady(pid) {
			return stage.Failed
		}
		t.s.acts[pid]++
		t.humanActed = true
		return stage.Ready
	case "eliminate":
		n, _ := strconv.Atoi(arg)
		t.s.host.Eliminate(stage.PlayerID(n))
		return stage.OK
	case "hook":
		n, _ := strconv.Atoi(arg)
		t.s.host.Hook(stage.PlayerID(n))
		return stage.OK
	case "block":
		close(t.s.entered)
		<-t.s.release
		t.s.acts[pid]++
		return stage.Checkout
	case "boom":
		stage.Fail("turn", "boom")
	case "panic":
		panic("plain panic")
	}
	return stage.NotFound
}

func (t *turn) HandleComputerAct(a *stage.Atomic, pid stage.PlayerID, asIfUser bool) stage.Result {
	t.s.computerCalls[pid]++
	if t.s.opts.restless {
		return stage.Continue
	}
	if !t.humanActed {
		return stage.OK
	}
	t.s.acts[pid]++
	return stage.Ready
}

// HandleLeave ends the turn when the quit option is set.
func (t *turn) HandleLeave(a *stage.Atomic, pid stage.PlayerID) stage.Result {
	if t.s.opts.quitOnLeave {
		return stage.Checkout
	}
	return stage.OK
}

func (t *turn) HandleTimeout(a *stage.Atomic) stage.Result {
	t.s.timeouts++
	return stage.Checkout
}

// recordingMessenger keeps every event it is asked to deliver. onSend, when set, sees each
// event as it is sent, with the match lock still held.
type recordingMessenger struct {
	mu     sync.Mutex
	events []sentEvent
	onSend func(Event)
}

type sentEvent struct {
	user  uuid.UUID
	group uuid.UUID
	ev    Event
}

func (r *recordingMessenger) SendUser(uid uuid.UUID, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, sentEvent{user: uid, ev: ev})
	r.mu.Unlock()
	if r.onSend != nil {
		r.onSend(ev)
	}
}

func (r *recordingMessenger) SendGroup(gid uuid.UUID, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, sentEvent{group: gid, ev: ev})
	r.mu.Unlock()
	if r.onSend != nil {
		r.onSend(ev)
	}
}

func (r *recordingMessenger) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recordingMessenger) last(t EventType) (sentEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].ev.Type == t {
			return r.events[i], true
		}
	}
	return sentEvent{}, false
}

// countingRecorder scores matches without a database.
type countingRecorder struct {
	mu      sync.Mutex
	records []models.MatchRecord
}

func (r *countingRecorder) RecordMatch(ctx context.Context, rec models.MatchRecord) ([]rating.ScoreInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	raw := make([]int64, len(rec.Players))
	for i, p := range rec.Players {
		raw[i] = p.Score
	}
	return rating.Calculate(raw, nil, nil, rec.Multiplier), nil
}

func (r *countingRecorder) calls() []models.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MatchRecord(nil), r.records...)
}

type memoryJournal struct {
	mu      sync.Mutex
	actions []models.MatchAction
}

func (j *memoryJournal) Publish(a models.MatchAction) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.actions = append(j.actions, a)
}

func (j *memoryJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.actions))
	for i, a := range j.actions {
		out[i] = a.ActionType
	}
	return out
}
