// internal/game/game.go
package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jason-s-yu/parlor/internal/stage"
)

// Info describes a game title.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinPlayers  int    `json:"minPlayers"`
	// MaxPlayers of 0 means no limit.
	MaxPlayers int `json:"maxPlayers"`
}

// Options holds a game's configurable settings. The match freezes them when it starts.
type Options interface {
	// Set parses and applies one setting. Unknown keys and bad values are errors.
	Set(key, value string) error
	// Describe renders the current settings for players.
	Describe() string
}

// Session is one running instance of a game.
type Session interface {
	Root() stage.Stage
	// Score is the final raw score of a player; read once the root checked out.
	Score(pid stage.PlayerID) int64
	// Achievements lists what the player unlocked; evaluated once at game end.
	Achievements(pid stage.PlayerID) []string
}

// Game is a pluggable title.
type Game interface {
	Info() Info
	NewOptions() Options
	NewSession(host stage.Host, opts Options, playerCount int) (Session, error)
}

var (
	ErrDuplicateGame = errors.New("game already registered")
	ErrUnknownOption = errors.New("unknown option")
)

// Registry maps game names to titles. It is filled at process start and read afterwards.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Game
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Game)}
}

// Default is the process-wide registry that bundled games add themselves to from init.
var Default = NewRegistry()

func (r *Registry) Register(g Game) error {
	name := g.Info().Name
	if name == "" {
		return fmt.Errorf("register game: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateGame)
	}
	r.games[name] = g
	return nil
}

// MustRegister is Register for init functions.
func (r *Registry) MustRegister(g Game) {
	if err := r.Register(g); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[name]
	return g, ok
}

// List returns the registered titles sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.games))
	for _, g := range r.games {
		infos = append(infos, g.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
