package match

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/game"
	"github.com/jason-s-yu/parlor/internal/stage"
)

// Options tunes every match a Manager creates.
type Options struct {
	// TimeUnit is the length of one stage-visible "second".
	TimeUnit time.Duration
	// AlertGranularity is the shortest alert interval of a timer cascade, in TimeUnits.
	AlertGranularity int
	// MaxMultiplier caps the score multiplier a host may set.
	MaxMultiplier int
	// RecordTimeout bounds the call into the Recorder for one finished match.
	RecordTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TimeUnit <= 0 {
		o.TimeUnit = time.Second
	}
	if o.AlertGranularity <= 0 {
		o.AlertGranularity = 10
	}
	if o.MaxMultiplier <= 0 {
		o.MaxMultiplier = 3
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 10 * time.Second
	}
	return o
}

// Config wires a Manager to its collaborators. Only Registry is required.
type Config struct {
	Registry  *game.Registry
	Messenger Messenger
	Recorder  Recorder
	Journal   Journal
	Logger    logrus.FieldLogger
	Options   Options
}

// Manager owns the lookup tables from match, user and group ids to matches. Its lock is
// never held while a match lock is being acquired; matches call into it with their own
// lock held, never the other way round.
type Manager struct {
	registry  *game.Registry
	messenger Messenger
	recorder  Recorder
	journal   Journal
	log       logrus.FieldLogger
	opts      Options

	mu      sync.Mutex
	matches map[uuid.UUID]*Match
	byUser  map[uuid.UUID]*Match
	byGroup map[uuid.UUID]*Match
}

func NewManager(cfg Config) *Manager {
	mg := &Manager{
		registry:  cfg.Registry,
		messenger: cfg.Messenger,
		recorder:  cfg.Recorder,
		journal:   cfg.Journal,
		log:       cfg.Logger,
		opts:      cfg.Options.withDefaults(),
		matches:   make(map[uuid.UUID]*Match),
		byUser:    make(map[uuid.UUID]*Match),
		byGroup:   make(map[uuid.UUID]*Match),
	}
	if mg.registry == nil {
		mg.registry = game.Default
	}
	if mg.messenger == nil {
		mg.messenger = discard{}
	}
	if mg.log == nil {
		mg.log = logrus.StandardLogger()
	}
	return mg
}

// Games lists the titles matches can be created for.
func (mg *Manager) Games() []game.Info {
	return mg.registry.List()
}

// NewMatch creates a match of the named game hosted by host. groupID binds the match to a
// room; uuid.Nil creates a private match whose broadcasts go to each participant directly.
func (mg *Manager) NewMatch(gameName string, host UserInfo, groupID uuid.UUID) (*Match, error) {
	g, ok := mg.registry.Lookup(gameName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameName)
	}
	m := newMatch(mg, g, host, groupID)

	mg.mu.Lock()
	defer mg.mu.Unlock()
	if _, busy := mg.byUser[host.ID]; busy {
		return nil, ErrAlreadyInMatch
	}
	if groupID != uuid.Nil {
		if _, busy := mg.byGroup[groupID]; busy {
			return nil, ErrGroupBusy
		}
		mg.byGroup[groupID] = m
	}
	mg.matches[m.ID] = m
	mg.byUser[host.ID] = m

	m.log.WithField("host", host.ID).Info("Match created")
	return m, nil
}

func (mg *Manager) Get(id uuid.UUID) (*Match, bool) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	m, ok := mg.matches[id]
	return m, ok
}

// ByUser returns the match the user currently takes part in, or nil.
func (mg *Manager) ByUser(uid uuid.UUID) *Match {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.byUser[uid]
}

// ByGroup returns the match bound to a room, or nil.
func (mg *Manager) ByGroup(gid uuid.UUID) *Match {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.byGroup[gid]
}

// List returns the live matches, oldest first.
func (mg *Manager) List() []*Match {
	mg.mu.Lock()
	list := make([]*Match, 0, len(mg.matches))
	for _, m := range mg.matches {
		list = append(list, m)
	}
	mg.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

// RequestFromGroup forwards text a user sent in a room to their match.
func (mg *Manager) RequestFromGroup(gid, uid uuid.UUID, text string) (stage.Result, error) {
	m := mg.ByUser(uid)
	if m == nil {
		return stage.NotFound, ErrNotInMatch
	}
	if m.GroupID != gid {
		return stage.NotFound, ErrWrongRoom
	}
	return m.Request(uid, true, text)
}

// RequestPrivate forwards text a user sent privately to their match.
func (mg *Manager) RequestPrivate(uid uuid.UUID, text string) (stage.Result, error) {
	m := mg.ByUser(uid)
	if m == nil {
		return stage.NotFound, ErrNotInMatch
	}
	return m.Request(uid, false, text)
}

func (mg *Manager) bind(uid uuid.UUID, m *Match) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if cur, ok := mg.byUser[uid]; ok && cur != m {
		return ErrAlreadyInMatch
	}
	mg.byUser[uid] = m
	return nil
}

func (mg *Manager) unbind(uid uuid.UUID, m *Match) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if mg.byUser[uid] == m {
		delete(mg.byUser, uid)
	}
}

// detach drops every table entry pointing at m.
func (mg *Manager) detach(m *Match) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	delete(mg.matches, m.ID)
	if mg.byGroup[m.GroupID] == m {
		delete(mg.byGroup, m.GroupID)
	}
	for uid, cur := range mg.byUser {
		if cur == m {
			delete(mg.byUser, uid)
		}
	}
}
