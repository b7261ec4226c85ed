// Package historian drains the match journal from Redis into PostgreSQL and closes matches
// that stopped producing actions.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/parlor/internal/database"
	"github.com/jason-s-yu/parlor/internal/models"
)

// Store is where batches end up.
type Store interface {
	InsertMatchActions(ctx context.Context, actions []models.MatchAction) error
	MarkMatchAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error)
}

// PostgresStore writes through the database package.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func (s PostgresStore) InsertMatchActions(ctx context.Context, actions []models.MatchAction) error {
	return database.InsertMatchActions(ctx, s.Pool, actions)
}

func (s PostgresStore) MarkMatchAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error) {
	return database.MarkMatchAbandoned(ctx, s.Pool, matchID)
}

type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a match may go without actions before it is marked abandoned.
	Inactivity    time.Duration
	SweepInterval time.Duration
	PopTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Queue == "" {
		o.Queue = "parlor_actions"
	}
	if o.BatchSize < 1 {
		o.BatchSize = 20
	}
	if o.FlushDelay <= 0 {
		o.FlushDelay = 500 * time.Millisecond
	}
	if o.Inactivity <= 0 {
		o.Inactivity = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = 3 * time.Second
	}
	return o
}

type Service struct {
	rdb   *redis.Client
	store Store
	opts  Options
	log   logrus.FieldLogger

	mu           sync.Mutex
	batch        []models.MatchAction
	lastActivity map[uuid.UUID]time.Time
}

func New(rdb *redis.Client, store Store, opts Options, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts = opts.withDefaults()
	return &Service{
		rdb:          rdb,
		store:        store,
		opts:         opts,
		log:          log,
		batch:        make([]models.MatchAction, 0, opts.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

// Run pops, flushes and sweeps until ctx is cancelled, then writes what is still buffered.
func (s *Service) Run(ctx context.Context) error {
	s.log.Infof("Historian started on queue %s", s.opts.Queue)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.popLoop(gctx) })
	g.Go(func() error { return s.tick(gctx, s.opts.FlushDelay, s.flush) })
	g.Go(func() error {
		return s.tick(gctx, s.opts.SweepInterval, func(c context.Context) { s.sweep(c, time.Now()) })
	})
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(shutdownCtx)
	s.log.Info("Historian stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) popLoop(ctx context.Context) error {
	for {
		res, err := s.rdb.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			s.log.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name, res[1] the payload
		if len(res) < 2 {
			continue
		}
		s.handle(ctx, res[1], time.Now())
	}
}

func (s *Service) tick(ctx context.Context, every time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// handle decodes one payload and buffers it, flushing once the batch is full.
func (s *Service) handle(ctx context.Context, payload string, now time.Time) {
	var rec models.MatchAction
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.log.WithError(err).Warn("Invalid match action in queue")
		return
	}
	if rec.MatchID == uuid.Nil {
		s.log.Warn("Match action without match id")
		return
	}

	s.mu.Lock()
	switch rec.ActionType {
	case database.ActionEnd, database.ActionAbort:
		delete(s.lastActivity, rec.MatchID)
	default:
		s.lastActivity[rec.MatchID] = now
	}
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the current batch in one transaction. A failed batch is put back in front
// of anything buffered since.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]models.MatchAction, 0, s.opts.BatchSize)
	s.mu.Unlock()

	if err := s.store.InsertMatchActions(ctx, pending); err != nil {
		s.log.WithError(err).Errorf("Failed to flush %d actions", len(pending))
		s.mu.Lock()
		s.batch = append(pending, s.batch...)
		s.mu.Unlock()
		return
	}
	s.log.Debugf("Flushed %d actions to DB", len(pending))
}

// sweep marks every match idle for longer than Inactivity as abandoned.
func (s *Service) sweep(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var idle []uuid.UUID
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.opts.Inactivity {
			idle = append(idle, id)
			delete(s.lastActivity, id)
		}
	}
	s.mu.Unlock()
	if len(idle) == 0 {
		return
	}

	// the match rows have to exist before they can be closed
	s.flush(ctx)
	for _, id := range idle {
		changed, err := s.store.MarkMatchAbandoned(ctx, id)
		if err != nil {
			s.log.WithField("match_id", id).WithError(err).Error("Failed to mark match abandoned")
			continue
		}
		if changed {
			s.log.WithField("match_id", id).Info("Marked match abandoned due to inactivity")
		}
	}
}
