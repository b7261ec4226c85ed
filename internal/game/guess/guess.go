// Package guess is the bundled "two thirds of the average" game. Every round each player
// privately picks a whole number from 0 to 100; whoever lands closest to two thirds of the
// average pick scores a point.
package guess

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/parlor/internal/game"
	"github.com/jason-s-yu/parlor/internal/stage"
)

const (
	Name = "guess"

	stageMatch = "match"
	stageRound = "round"

	// AchievementBullseye is unlocked by a pick that equals the target exactly.
	AchievementBullseye = "bullseye"
)

func init() {
	game.Default.MustRegister(Game{})
}

type Game struct{}

func (Game) Info() game.Info {
	return game.Info{
		Name:        Name,
		Description: "Pick a number from 0 to 100. Closest to two thirds of the average wins the round.",
		MinPlayers:  2,
		MaxPlayers:  16,
	}
}

func (Game) NewOptions() game.Options {
	return &Options{Rounds: DefaultRounds, Timeout: DefaultTimeout}
}

func (Game) NewSession(host stage.Host, opts game.Options, playerCount int) (game.Session, error) {
	o, ok := opts.(*Options)
	if !ok {
		return nil, fmt.Errorf("guess: unexpected options type %T", opts)
	}
	if playerCount < 2 {
		return nil, fmt.Errorf("guess: needs at least 2 players, got %d", playerCount)
	}
	s := &session{
		host:     host,
		opts:     *o,
		scores:   make([]int64, playerCount),
		bullseye: make([]bool, playerCount),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.root = stage.NewComposite(host, stageMatch, s, stageRound)
	return s, nil
}

type session struct {
	stage.DefaultComposite
	host stage.Host
	opts Options
	root *stage.Composite

	round    int
	scores   []int64
	bullseye []bool
	rng      *rand.Rand
}

func (s *session) Root() stage.Stage { return s.root }

func (s *session) Score(pid stage.PlayerID) int64 { return s.scores[pid] }

func (s *session) Achievements(pid stage.PlayerID) []string {
	if s.bullseye[pid] {
		return []string{AchievementBullseye}
	}
	return nil
}

func (s *session) FirstStage(c *stage.Composite) stage.Stage {
	if s.opts.Instant {
		return nil
	}
	return s.newRound()
}

func (s *session) NextStage(c *stage.Composite, finished stage.Stage, reason stage.CheckoutReason) stage.Stage {
	if s.round >= s.opts.Rounds {
		s.host.Broadcast("Final scores: " + s.standings())
		return nil
	}
	return s.newRound()
}

// HandleRequest answers "scores" at any point of the match.
func (s *session) HandleRequest(c *stage.Composite, pid stage.PlayerID, public bool, msg string) stage.Result {
	if strings.TrimSpace(msg) != "scores" {
		return stage.NotFound
	}
	s.host.Tell(pid, s.standings())
	return stage.OK
}

func (s *session) newRound() stage.Stage {
	s.round++
	return stage.NewAtomic(s.host, stageRound, &round{s: s, number: s.round, picks: make(map[stage.PlayerID]int)})
}

func (s *session) standings() string {
	parts := make([]string, len(s.scores))
	for pid, sc := range s.scores {
		parts[pid] = fmt.Sprintf("%s %d", s.host.PlayerName(stage.PlayerID(pid)), sc)
	}
	return strings.Join(parts, ", ")
}

type round struct {
	stage.DefaultAtomic
	s      *session
	number int
	picks  map[stage.PlayerID]int
}

func (r *round) OnBegin(a *stage.Atomic) {
	r.s.host.Broadcast(fmt.Sprintf("Round %d of %d: send me a number from 0 to 100.", r.number, r.s.opts.Rounds))
	a.StartTimer(r.s.opts.Timeout)
}

// HandleRequest takes a number as this round's pick; "undo" withdraws it while the round
// is still open.
func (r *round) HandleRequest(a *stage.Atomic, pid stage.PlayerID, public bool, msg string) stage.Result {
	msg = strings.TrimSpace(msg)
	if msg == "undo" {
		if !a.IsReady(pid) {
			r.s.host.Tell(pid, "You have not picked yet.")
			return stage.Failed
		}
		delete(r.picks, pid)
		a.UnsetReady(pid)
		r.s.host.Tell(pid, "Pick withdrawn.")
		return stage.OK
	}
	n, err := strconv.Atoi(msg)
	if err != nil {
		return stage.NotFound
	}
	if public {
		r.s.host.Tell(pid, "Send your number privately.")
		return stage.Failed
	}
	if n < 0 || n > 100 {
		r.s.host.Tell(pid, "Your number must be between 0 and 100.")
		return stage.Failed
	}
	if a.IsReady(pid) {
		r.s.host.Tell(pid, "You already picked this round. Send undo to change it.")
		return stage.Failed
	}
	r.picks[pid] = n
	r.s.host.Tell(pid, fmt.Sprintf("Got %d.", n))
	return stage.Ready
}

// HandleComputerAct picks at random below the largest possible target.
func (r *round) HandleComputerAct(a *stage.Atomic, pid stage.PlayerID, asIfUser bool) stage.Result {
	r.picks[pid] = r.s.rng.Intn(67)
	return stage.Ready
}

func (r *round) HandleTimeout(a *stage.Atomic) stage.Result {
	for pid := 0; pid < r.s.host.PlayerCount(); pid++ {
		id := stage.PlayerID(pid)
		if r.s.host.PlayerState(id) == stage.Active && !a.IsReady(id) {
			r.s.host.Hook(id)
		}
	}
	r.settle()
	return stage.Checkout
}

func (r *round) OnAllReady(a *stage.Atomic) stage.Result {
	r.settle()
	return stage.Checkout
}

// Target is two thirds of the average pick.
func Target(picks []int) float64 {
	if len(picks) == 0 {
		return 0
	}
	sum := 0
	for _, p := range picks {
		sum += p
	}
	return 2 * float64(sum) / float64(3*len(picks))
}

func (r *round) settle() {
	if len(r.picks) == 0 {
		r.s.host.Broadcast(fmt.Sprintf("Round %d: nobody picked a number.", r.number))
		return
	}
	pids := make([]stage.PlayerID, 0, len(r.picks))
	values := make([]int, 0, len(r.picks))
	for pid := range r.picks {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		values = append(values, r.picks[pid])
	}
	target := Target(values)

	best, worst := math.Inf(1), -1.0
	for _, v := range values {
		d := math.Abs(float64(v) - target)
		best = math.Min(best, d)
		worst = math.Max(worst, d)
	}
	var winners, losers []stage.PlayerID
	for i, pid := range pids {
		d := math.Abs(float64(values[i]) - target)
		if d == best {
			winners = append(winners, pid)
			r.s.scores[pid]++
			if d < 1e-9 {
				r.s.bullseye[pid] = true
			}
		}
		if d == worst {
			losers = append(losers, pid)
		}
	}

	names := make([]string, len(winners))
	for i, pid := range winners {
		names[i] = r.s.host.PlayerName(pid)
	}
	r.s.host.Broadcast(fmt.Sprintf("Round %d: target %.2f, closest: %s.", r.number, target, strings.Join(names, ", ")))

	if r.s.opts.Eliminate && len(losers) == 1 && best != worst && r.remaining() > 2 {
		r.s.host.Eliminate(losers[0])
	}
}

func (r *round) remaining() int {
	n := 0
	for pid := 0; pid < r.s.host.PlayerCount(); pid++ {
		if r.s.host.PlayerState(stage.PlayerID(pid)) != stage.Eliminated {
			n++
		}
	}
	return n
}
