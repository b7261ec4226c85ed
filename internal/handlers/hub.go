package handlers

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/match"
)

const outBuffer = 32

// client is one live WebSocket connection of a user.
type client struct {
	userID uuid.UUID
	out    chan []byte
	groups map[uuid.UUID]struct{}
}

// Hub fans match events out to live connections. It implements match.Messenger: sends
// only enqueue, and each connection's write pump does the network I/O.
type Hub struct {
	log logrus.FieldLogger

	mu     sync.Mutex
	users  map[uuid.UUID]map[*client]struct{}
	groups map[uuid.UUID]map[*client]struct{}
}

var _ match.Messenger = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:    log,
		users:  make(map[uuid.UUID]map[*client]struct{}),
		groups: make(map[uuid.UUID]map[*client]struct{}),
	}
}

func (h *Hub) register(uid uuid.UUID) *client {
	c := &client{userID: uid, out: make(chan []byte, outBuffer), groups: make(map[uuid.UUID]struct{})}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[uid]
	if set == nil {
		set = make(map[*client]struct{})
		h.users[uid] = set
	}
	set[c] = struct{}{}
	return c
}

// unregister drops c and closes its queue. It returns how many connections the user still
// has.
func (h *Hub) unregister(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.userID]
	if !ok {
		return 0
	}
	if _, live := set[c]; !live {
		return len(set)
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.userID)
	}
	for gid := range c.groups {
		h.leaveGroup(c, gid)
	}
	close(c.out)
	return len(set)
}

func (h *Hub) subscribe(c *client, gid uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.users[c.userID][c]; !live {
		return
	}
	set := h.groups[gid]
	if set == nil {
		set = make(map[*client]struct{})
		h.groups[gid] = set
	}
	set[c] = struct{}{}
	c.groups[gid] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, gid uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveGroup(c, gid)
}

func (h *Hub) leaveGroup(c *client, gid uuid.UUID) {
	delete(c.groups, gid)
	if set := h.groups[gid]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.groups, gid)
		}
	}
}

func (h *Hub) SendUser(uid uuid.UUID, ev match.Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[uid] {
		h.enqueue(c, data)
	}
}

func (h *Hub) SendGroup(gid uuid.UUID, ev match.Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.groups[gid] {
		h.enqueue(c, data)
	}
}

// sendTo writes a reply to one connection only.
func (h *Hub) sendTo(c *client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal reply")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, live := h.users[c.userID][c]; live {
		h.enqueue(c, data)
	}
}

func (h *Hub) encode(ev match.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("type", ev.Type).Error("Failed to marshal event")
		return nil, false
	}
	return data, true
}

// enqueue drops the message for a connection that is not keeping up.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.out <- data:
	default:
		h.log.WithField("user_id", c.userID).Warn("Outbound queue full, dropping message")
	}
}
