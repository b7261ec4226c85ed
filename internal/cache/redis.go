// Package cache publishes the match journal to a Redis list for the historian.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/models"
)

// DefaultQueueName is the Redis list the historian consumes.
const DefaultQueueName = "parlor_actions"

const (
	publishTimeout = 2 * time.Second
	bufferSize     = 1024
)

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Journal pushes match actions onto a Redis list. Publish never blocks the caller: actions
// are queued in memory and pushed in order by one writer goroutine. When the buffer is full
// the action is dropped and logged.
type Journal struct {
	rdb   *redis.Client
	queue string
	log   logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	buf    chan []byte
	done   chan struct{}
}

func NewJournal(rdb *redis.Client, queue string, log logrus.FieldLogger) *Journal {
	if queue == "" {
		queue = DefaultQueueName
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	j := &Journal{
		rdb:   rdb,
		queue: queue,
		log:   log,
		buf:   make(chan []byte, bufferSize),
		done:  make(chan struct{}),
	}
	go j.writeLoop()
	return j
}

func (j *Journal) Publish(action models.MatchAction) {
	data, err := json.Marshal(action)
	if err != nil {
		j.log.WithError(err).Error("Failed to marshal match action")
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.buf <- data:
	default:
		j.log.WithFields(logrus.Fields{
			"match_id": action.MatchID,
			"index":    action.ActionIndex,
		}).Warn("Journal buffer full, dropping match action")
	}
}

// Close stops accepting actions and waits until the buffered ones are pushed.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.buf)
	}
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) writeLoop() {
	defer close(j.done)
	for data := range j.buf {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := j.push(ctx, data); err != nil {
			j.log.WithError(err).Warn("Failed to publish match action")
		}
		cancel()
	}
}

// PublishSync pushes the action and waits for Redis to accept it.
func (j *Journal) PublishSync(ctx context.Context, action models.MatchAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchAction: %w", err)
	}
	return j.push(ctx, data)
}

func (j *Journal) push(ctx context.Context, data []byte) error {
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}
