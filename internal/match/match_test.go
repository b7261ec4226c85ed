package match

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/parlor/internal/game"
	"github.com/jason-s-yu/parlor/internal/stage"
)

type fixture struct {
	mg        *Manager
	game      *relay
	messenger *recordingMessenger
	recorder  *countingRecorder
	journal   *memoryJournal
}

func newFixture(t *testing.T, min, max int) *fixture {
	t.Helper()
	f := &fixture{
		game:      &relay{min: min, max: max},
		messenger: &recordingMessenger{},
		recorder:  &countingRecorder{},
		journal:   &memoryJournal{},
	}
	reg := game.NewRegistry()
	require.NoError(t, reg.Register(f.game))
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	f.mg = NewManager(Config{
		Registry:  reg,
		Messenger: f.messenger,
		Recorder:  f.recorder,
		Journal:   f.journal,
		Logger:    logger,
		Options:   Options{TimeUnit: time.Millisecond},
	})
	return f
}

func user(name string) UserInfo {
	return UserInfo{ID: uuid.New(), Name: name}
}

// session returns the stage session of the most recently started match.
func (f *fixture) session() *relaySession {
	return f.game.sessions[len(f.game.sessions)-1]
}

// inspect runs fn under the match lock so reads do not race the timer goroutine.
func inspect(m *Match, fn func()) {
	m.lock()
	defer m.unlock()
	fn()
}

func (f *fixture) newMatch(t *testing.T, host UserInfo, others ...UserInfo) *Match {
	t.Helper()
	m, err := f.mg.NewMatch("relay", host, uuid.Nil)
	require.NoError(t, err)
	for _, u := range others {
		require.NoError(t, m.Join(u))
	}
	return m
}

func TestTwoHumansFinishAndRecordOnce(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Start(a.ID))
	assert.Equal(t, Started, m.State())

	res, err := m.Request(a.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)
	res, err = m.Request(b.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Checkout, res)

	assert.Equal(t, Over, m.State())
	records := f.recorder.calls()
	require.Len(t, records, 1)
	require.Len(t, records[0].Players, 2)
	assert.Equal(t, a.ID, records[0].Players[0].UserID)
	assert.Equal(t, []string{"acted"}, records[0].Players[0].Achievements)
	assert.Equal(t, 2, f.messenger.count(EventScores), "one private copy per player")

	assert.Nil(t, f.mg.ByUser(a.ID))
	assert.Nil(t, f.mg.ByUser(b.ID))
	_, ok := f.mg.Get(m.ID)
	assert.False(t, ok)
}

func TestEndedMatchLeavesTablesBeforeAnnouncing(t *testing.T) {
	for _, tc := range []struct {
		name string
		end  func(m *Match, a, b UserInfo)
		want EventType
	}{
		{"finished", func(m *Match, a, b UserInfo) {
			m.Request(a.ID, false, "act")
			m.Request(b.ID, false, "act")
		}, EventOver},
		{"aborted", func(m *Match, a, b UserInfo) { m.Terminate("closing") }, EventAborted},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 2, 2)
			a, b := user("alice"), user("bob")
			m := f.newMatch(t, a, b)
			require.NoError(t, m.Start(a.ID))

			seen := 0
			f.messenger.onSend = func(ev Event) {
				if ev.Type != tc.want {
					return
				}
				seen++
				_, listed := f.mg.Get(m.ID)
				assert.False(t, listed)
				assert.Nil(t, f.mg.ByUser(a.ID))
				assert.Nil(t, f.mg.ByUser(b.ID))
			}
			tc.end(m, a, b)
			assert.Equal(t, Over, m.State())
			assert.Equal(t, 2, seen, "one private copy per player")
		})
	}
}

func TestBenchedComputersEachActOnceAfterHuman(t *testing.T) {
	f := newFixture(t, 1, 5)
	h := user("host")
	m := f.newMatch(t, h)
	require.NoError(t, m.SetBenchTo(h.ID, 5))
	require.NoError(t, m.Start(h.ID))

	players := m.Players()
	require.Len(t, players, 5)
	assert.Equal(t, UserIdentity{ID: h.ID}, players[0].Identity)
	for i := 1; i < 5; i++ {
		assert.Equal(t, ComputerIdentity{Index: i - 1}, players[i].Identity)
	}

	s := f.session()
	var before []int
	inspect(m, func() { before = append(before, s.computerCalls...) })

	res, err := m.Request(h.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)

	inspect(m, func() {
		for pid := 1; pid < 5; pid++ {
			assert.Equal(t, 1, s.computerCalls[pid]-before[pid], "computer %d", pid)
		}
	})
	assert.Equal(t, Over, m.State())
	assert.Empty(t, f.recorder.calls(), "a single human is not recorded")
}

func TestShortTimerTimesOutWithoutAlerts(t *testing.T) {
	f := newFixture(t, 1, 1)
	h := user("host")
	m := f.newMatch(t, h)
	require.NoError(t, m.Configure(h.ID, "timeout", "1"))
	require.NoError(t, m.Start(h.ID))

	require.Eventually(t, func() bool { return m.State() == Over }, time.Second, 5*time.Millisecond)
	s := f.session()
	inspect(m, func() { assert.Equal(t, 1, s.timeouts) })
	assert.Zero(t, f.messenger.count(EventAlert))
}

func TestLongTimerAlertsBeforeTimeout(t *testing.T) {
	f := newFixture(t, 1, 1)
	h := user("host")
	m := f.newMatch(t, h)
	require.NoError(t, m.Configure(h.ID, "timeout", "100"))
	require.NoError(t, m.Start(h.ID))

	require.Eventually(t, func() bool { return m.State() == Over }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.messenger.count(EventAlert))
	ev, ok := f.messenger.last(EventAlert)
	require.True(t, ok)
	assert.Equal(t, 10, ev.ev.Payload["seconds"])
}

func TestAllHumansForceLeaveTearsDownWithoutRecording(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Start(a.ID))

	assert.ErrorIs(t, m.Leave(a.ID, false), ErrForceRequired)
	require.NoError(t, m.Leave(a.ID, true))
	assert.Equal(t, Started, m.State())
	assert.ErrorIs(t, m.Leave(a.ID, true), ErrNotInMatch)

	require.NoError(t, m.Leave(b.ID, true))
	assert.Equal(t, Over, m.State())
	assert.Empty(t, f.recorder.calls())
	assert.Contains(t, f.journal.types(), "abort")
	_, ok := f.mg.Get(m.ID)
	assert.False(t, ok)
}

func TestDepartedSeatIsPlayedByComputerPolicy(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Start(a.ID))
	require.NoError(t, m.Leave(a.ID, true))

	res, err := m.Request(b.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)
	assert.Equal(t, Over, m.State())

	records := f.recorder.calls()
	require.Len(t, records, 1)
	assert.Len(t, records[0].Players, 2, "departed players keep their seat in the record")

	// the departed user no longer receives match traffic
	f.messenger.mu.Lock()
	defer f.messenger.mu.Unlock()
	for _, e := range f.messenger.events {
		if e.ev.Type == EventOver {
			assert.NotEqual(t, a.ID, e.user)
		}
	}
}

func TestForcedLeaveEndsTurn(t *testing.T) {
	f := newFixture(t, 3, 3)
	a, b, c := user("alice"), user("bob"), user("carol")
	m := f.newMatch(t, a, b, c)
	require.NoError(t, m.Configure(a.ID, "quit", "true"))
	require.NoError(t, m.Configure(a.ID, "rounds", "2"))
	require.NoError(t, m.Start(a.ID))

	_, err := m.Request(a.ID, false, "act")
	require.NoError(t, err)
	require.NoError(t, m.Leave(c.ID, true))
	assert.Equal(t, Started, m.State(), "the second turn is running")
	inspect(m, func() {
		assert.Equal(t, []stage.CheckoutReason{stage.ByLeave}, f.session().reasons)
	})

	// carol's seat now acts through the computer policy once a human has acted
	_, err = m.Request(a.ID, false, "act")
	require.NoError(t, err)
	res, err := m.Request(b.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Checkout, res)
	assert.Equal(t, Over, m.State())
	assert.Equal(t, []stage.CheckoutReason{stage.ByLeave, stage.ByRequest}, f.session().reasons)
	assert.Equal(t, stage.ByRequest, f.session().root.Reason())
}

func TestForcedLeaveEndsMatch(t *testing.T) {
	f := newFixture(t, 3, 3)
	a, b, c := user("alice"), user("bob"), user("carol")
	m := f.newMatch(t, a, b, c)
	require.NoError(t, m.Configure(a.ID, "quit", "true"))
	require.NoError(t, m.Start(a.ID))

	require.NoError(t, m.Leave(b.ID, true))
	assert.Equal(t, Over, m.State())
	assert.Equal(t, []stage.CheckoutReason{stage.ByLeave}, f.session().reasons)
	assert.Equal(t, stage.ByLeave, f.session().root.Reason())
	assert.Zero(t, f.messenger.count(EventAborted))

	records := f.recorder.calls()
	require.Len(t, records, 1)
	assert.Len(t, records[0].Players, 3)
	assert.Nil(t, f.mg.ByUser(a.ID))
}

func TestLeaveBeforeStartReassignsHostAndDissolves(t *testing.T) {
	f := newFixture(t, 1, 4)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)

	require.NoError(t, m.Leave(a.ID, false))
	assert.Equal(t, b.ID, m.HostID())
	assert.Nil(t, f.mg.ByUser(a.ID))
	assert.Equal(t, 1, f.messenger.count(EventHost))

	require.NoError(t, m.Leave(b.ID, false))
	assert.Equal(t, Over, m.State())
	_, ok := f.mg.Get(m.ID)
	assert.False(t, ok)
	assert.Empty(t, f.recorder.calls())
}

func TestEliminationIsMonotonic(t *testing.T) {
	f := newFixture(t, 1, 4)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.SetBenchTo(a.ID, 4))
	require.NoError(t, m.Start(a.ID))
	s := f.session()

	_, err := m.Request(a.ID, false, "eliminate 1")
	require.NoError(t, err)
	_, err = m.Request(a.ID, false, "eliminate 3")
	require.NoError(t, err)

	var frozen int
	inspect(m, func() { frozen = s.computerCalls[3] })

	_, err = m.Request(b.ID, false, "act")
	assert.ErrorIs(t, err, ErrEliminated)
	assert.ErrorIs(t, m.Interrupt(b.ID, true), ErrEliminated)

	res, err := m.Request(a.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)
	assert.Equal(t, Over, m.State())
	inspect(m, func() {
		assert.Equal(t, frozen, s.computerCalls[3])
		assert.Zero(t, s.acts[1])
		assert.Zero(t, s.acts[3])
	})
	assert.Equal(t, stage.Eliminated, m.Players()[1].State)
}

func TestOnlyComputersLeftAnnouncesDeductionOnce(t *testing.T) {
	f := newFixture(t, 1, 3)
	a := user("alice")
	m := f.newMatch(t, a)
	require.NoError(t, m.SetBenchTo(a.ID, 3))
	require.NoError(t, m.Configure(a.ID, "rounds", "2"))
	require.NoError(t, m.Start(a.ID))

	_, err := m.Request(a.ID, false, "eliminate 0")
	require.NoError(t, err)
	assert.Equal(t, 1, f.messenger.count(EventDeduction))
}

func TestHookedPlayerIsSkippedThenReactivated(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Configure(a.ID, "rounds", "2"))
	require.NoError(t, m.Start(a.ID))

	res, err := m.Request(a.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)

	// hooking the only player not yet ready completes the turn
	_, err = m.Request(a.ID, false, "hook 1")
	require.NoError(t, err)
	assert.Equal(t, stage.Hooked, m.Players()[1].State)
	s := f.session()
	inspect(m, func() { assert.Equal(t, 1, s.played) })

	res, err = m.Request(b.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)
	assert.Equal(t, stage.Active, m.Players()[1].State)
}

func TestInterruptNeedsConsensusAndIsRevocable(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	assert.ErrorIs(t, m.Interrupt(a.ID, true), ErrNotStarted)
	require.NoError(t, m.Start(a.ID))

	require.NoError(t, m.Interrupt(a.ID, true))
	require.NoError(t, m.Interrupt(a.ID, false))
	require.NoError(t, m.Interrupt(b.ID, true))
	assert.Equal(t, Started, m.State())

	require.NoError(t, m.Interrupt(a.ID, true))
	assert.Equal(t, Over, m.State())
	assert.Empty(t, f.recorder.calls())
	assert.ErrorIs(t, m.Interrupt(a.ID, true), ErrMatchOver)
}

func TestTimeoutRacingRequestMutatesOnce(t *testing.T) {
	f := newFixture(t, 1, 1)
	h := user("host")
	m := f.newMatch(t, h)
	require.NoError(t, m.Configure(h.ID, "timeout", "50"))
	require.NoError(t, m.Start(h.ID))
	s := f.session()

	done := make(chan stage.Result)
	go func() {
		res, _ := m.Request(h.ID, false, "block")
		done <- res
	}()
	<-s.entered
	// the timer expires while the request holds the match
	time.Sleep(120 * time.Millisecond)
	close(s.release)
	assert.Equal(t, stage.Checkout, <-done)

	time.Sleep(40 * time.Millisecond)
	inspect(m, func() {
		assert.Zero(t, s.timeouts)
		assert.Equal(t, 1, s.acts[0])
	})
	assert.Equal(t, Over, m.State())
}

func TestRestlessComputersAreCappedAsStructuralError(t *testing.T) {
	f := newFixture(t, 1, 3)
	h := user("host")
	m := f.newMatch(t, h)
	require.NoError(t, m.SetBenchTo(h.ID, 3))
	require.NoError(t, m.Configure(h.ID, "restless", "true"))
	require.NoError(t, m.Start(h.ID))

	assert.Equal(t, Over, m.State())
	assert.Equal(t, 1, f.messenger.count(EventAborted))
	s := f.session()
	inspect(m, func() {
		assert.Equal(t, turnsPerActor, s.computerCalls[1])
		assert.Equal(t, turnsPerActor, s.computerCalls[2])
	})
}

func TestStructuralErrorAbortsOnlyThatMatch(t *testing.T) {
	f := newFixture(t, 1, 1)
	a, b := user("alice"), user("bob")
	broken := f.newMatch(t, a)
	healthy := f.newMatch(t, b)
	require.NoError(t, broken.Start(a.ID))
	require.NoError(t, healthy.Start(b.ID))

	res, err := broken.Request(a.ID, false, "boom")
	require.NoError(t, err)
	assert.Equal(t, stage.Failed, res)
	assert.Equal(t, Over, broken.State())
	assert.Nil(t, f.mg.ByUser(a.ID))

	res, err = healthy.Request(b.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Checkout, res)
	assert.Empty(t, f.recorder.calls())
}

func TestPlainPanicAlsoAborts(t *testing.T) {
	f := newFixture(t, 1, 1)
	a := user("alice")
	m := f.newMatch(t, a)
	require.NoError(t, m.Start(a.ID))
	assert.NotPanics(t, func() { _, _ = m.Request(a.ID, false, "panic") })
	assert.Equal(t, Over, m.State())
}

func TestInstantGameEndsAtStart(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Configure(a.ID, "instant", "true"))
	require.NoError(t, m.Start(a.ID))
	assert.Equal(t, Over, m.State())
	assert.Len(t, f.recorder.calls(), 1)
}

func TestUnrankedMatchIsNotRecorded(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.SetMultiplier(a.ID, 0))
	require.NoError(t, m.Start(a.ID))
	_, _ = m.Request(a.ID, false, "act")
	_, _ = m.Request(b.ID, false, "act")
	assert.Equal(t, Over, m.State())
	assert.Empty(t, f.recorder.calls())
}

func TestUserErrorsLeaveStateUntouched(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b, c := user("alice"), user("bob"), user("carol")
	m := f.newMatch(t, a)

	assert.ErrorIs(t, m.Start(a.ID), ErrTooFewPlayers)
	require.NoError(t, m.Join(b))
	assert.ErrorIs(t, m.Join(b), ErrAlreadyInMatch)
	assert.ErrorIs(t, m.Join(c), ErrPlayerCap)
	assert.ErrorIs(t, m.Start(b.ID), ErrNotHost)
	assert.ErrorIs(t, m.Start(c.ID), ErrNotInMatch)
	assert.ErrorIs(t, m.SetBenchTo(a.ID, 3), ErrPlayerCap)
	assert.ErrorIs(t, m.SetMultiplier(a.ID, 99), ErrInvalidConfig)
	assert.ErrorIs(t, m.Configure(a.ID, "colour", "red"), ErrInvalidConfig)
	assert.ErrorIs(t, m.Configure(a.ID, "rounds", "x"), ErrInvalidConfig)
	_, err := m.Request(a.ID, false, "act")
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = f.mg.NewMatch("relay", a, uuid.Nil)
	assert.ErrorIs(t, err, ErrAlreadyInMatch)
	_, err = f.mg.NewMatch("chess", c, uuid.Nil)
	assert.ErrorIs(t, err, ErrUnknownGame)

	require.NoError(t, m.Configure(a.ID, "fail", "true"))
	assert.ErrorIs(t, m.Start(a.ID), ErrInvalidConfig)
	assert.Equal(t, NotStarted, m.State())
	require.NoError(t, m.Configure(a.ID, "fail", "false"))

	require.NoError(t, m.Start(a.ID))
	assert.ErrorIs(t, m.Start(a.ID), ErrAlreadyStarted)
	assert.ErrorIs(t, m.Join(c), ErrAlreadyStarted)
	_, err = m.Request(c.ID, false, "act")
	assert.ErrorIs(t, err, ErrNotInMatch)

	res, err := m.Request(a.ID, false, "dance")
	require.NoError(t, err)
	assert.Equal(t, stage.NotFound, res)
	res, err = m.Request(a.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Ready, res)
	res, err = m.Request(a.ID, false, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Failed, res)
}

func TestGroupRouting(t *testing.T) {
	f := newFixture(t, 1, 2)
	a := user("alice")
	room, other := uuid.New(), uuid.New()
	m, err := f.mg.NewMatch("relay", a, room)
	require.NoError(t, err)
	assert.Same(t, m, f.mg.ByGroup(room))

	_, err = f.mg.NewMatch("relay", user("bob"), room)
	assert.ErrorIs(t, err, ErrGroupBusy)

	require.NoError(t, m.Start(a.ID))
	_, err = f.mg.RequestFromGroup(other, a.ID, "act")
	assert.ErrorIs(t, err, ErrWrongRoom)
	_, err = f.mg.RequestPrivate(uuid.New(), "act")
	assert.ErrorIs(t, err, ErrNotInMatch)

	res, err := f.mg.RequestFromGroup(room, a.ID, "act")
	require.NoError(t, err)
	assert.Equal(t, stage.Checkout, res)

	ev, ok := f.messenger.last(EventOver)
	require.True(t, ok)
	assert.Equal(t, room, ev.group)
	assert.Nil(t, f.mg.ByGroup(room))
}

func TestJournalSeesSerializedEvents(t *testing.T) {
	f := newFixture(t, 2, 2)
	a, b := user("alice"), user("bob")
	m := f.newMatch(t, a, b)
	require.NoError(t, m.Start(a.ID))
	_, _ = m.Request(a.ID, false, "act")
	_, _ = m.Request(b.ID, false, "act")

	assert.Equal(t, []string{"join", "start", "request", "request", "end"}, f.journal.types())
	f.journal.mu.Lock()
	defer f.journal.mu.Unlock()
	for i, act := range f.journal.actions {
		assert.Equal(t, i, act.ActionIndex)
		assert.Equal(t, m.ID, act.MatchID)
	}
}

func TestStatusListsSeats(t *testing.T) {
	f := newFixture(t, 1, 3)
	a := user("alice")
	m := f.newMatch(t, a)
	require.NoError(t, m.SetBenchTo(a.ID, 2))

	st := m.Status()
	assert.Equal(t, "not_started", st.State)
	require.Len(t, st.Players, 1)

	require.NoError(t, m.Configure(a.ID, "rounds", "3"))
	require.NoError(t, m.Start(a.ID))
	st = m.Status()
	require.Len(t, st.Players, 2)
	assert.Equal(t, "alice", st.Players[0].Name)
	assert.True(t, st.Players[1].Computer)
	assert.Equal(t, "Computer #1", st.Players[1].Name)
	assert.Len(t, f.mg.List(), 1)
}
