package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/match"
	"github.com/jason-s-yu/parlor/internal/middleware"
	"github.com/jason-s-yu/parlor/internal/models"
	"github.com/jason-s-yu/parlor/internal/stage"
)

const (
	subprotocol  = "parlor"
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// command is one inbound WebSocket message. Which fields matter depends on Type.
type command struct {
	Type    string          `json:"type"`
	MatchID uuid.UUID       `json:"matchId,omitempty"`
	GroupID uuid.UUID       `json:"groupId,omitempty"`
	Force   bool            `json:"force,omitempty"`
	Count   int             `json:"count,omitempty"`
	Key     string          `json:"key,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Want    bool            `json:"want,omitempty"`
	Text    string          `json:"text,omitempty"`
}

type reply struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Message string `json:"message,omitempty"`
	Result  string `json:"result,omitempty"`
}

// session is one authenticated connection.
type session struct {
	s    *Server
	user *models.User
	c    *client
	log  logrus.FieldLogger
}

// MatchWSHandler upgrades to a WebSocket speaking the parlor subprotocol. The user is
// resolved before the upgrade so a new guest cookie reaches the client.
func (s *Server) MatchWSHandler(w http.ResponseWriter, r *http.Request) {
	u, err := s.EnsureUser(w, r)
	if err != nil {
		s.Log.WithError(err).Warn("User authentication failed for match socket")
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "handler finished")

	if conn.Subprotocol() != subprotocol {
		conn.Close(BadSubprotocolError, "client must speak the parlor subprotocol")
		return
	}

	log := s.Log.WithField("user_id", u.ID)
	middleware.LogWebSocketConnect(log, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{s: s, user: u, c: s.Hub.register(u.ID), log: log}
	go sess.writePump(ctx, conn, cancel)
	err = sess.readPump(ctx, conn)

	if remaining := s.Hub.unregister(sess.c); remaining == 0 {
		sess.dropPending()
	}
	middleware.LogWebSocketDisconnect(log, r.RemoteAddr, r.URL.Path, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (sess *session) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			sess.log.Debugf("Ignoring non-text message type %d", typ)
			continue
		}

		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			sess.send(reply{Type: "error", Message: "Invalid JSON format"})
			continue
		}
		sess.handle(cmd)
	}
}

func (sess *session) writePump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sess.c.out:
			if !ok {
				return
			}
			writeCtx, done := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			done()
			if err != nil {
				sess.log.Warnf("Failed to write to websocket: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, 15*time.Second)
			err := conn.Ping(pingCtx)
			done()
			if err != nil {
				sess.log.Warnf("Failed to ping: %v. Assuming disconnect.", err)
				return
			}
		}
	}
}

// dropPending takes the user out of a match that has not started yet once their last
// connection is gone. Started matches keep the seat for a reconnect.
func (sess *session) dropPending() {
	m := sess.s.Matches.ByUser(sess.user.ID)
	if m == nil || m.State() != match.NotStarted {
		return
	}
	if err := m.Leave(sess.user.ID, false); err != nil {
		sess.log.WithError(err).Debug("Leave on disconnect failed")
	}
}

func (sess *session) send(r reply) {
	sess.s.Hub.sendTo(sess.c, r)
}

func (sess *session) handle(cmd command) {
	uid := sess.user.ID
	var err error
	switch cmd.Type {
	case "ping":
		sess.send(reply{Type: "pong"})
		return
	case "subscribe":
		if cmd.GroupID == uuid.Nil {
			err = errors.New("groupId is required")
			break
		}
		sess.s.Hub.subscribe(sess.c, cmd.GroupID)
	case "unsubscribe":
		sess.s.Hub.unsubscribe(sess.c, cmd.GroupID)
	case "join":
		m, ok := sess.s.Matches.Get(cmd.MatchID)
		if !ok {
			err = fmt.Errorf("match %s not found", cmd.MatchID)
			break
		}
		err = m.Join(userInfo(sess.user))
	case "request":
		var res stage.Result
		if cmd.GroupID != uuid.Nil {
			res, err = sess.s.Matches.RequestFromGroup(cmd.GroupID, uid, cmd.Text)
		} else {
			res, err = sess.s.Matches.RequestPrivate(uid, cmd.Text)
		}
		if err == nil {
			sess.send(reply{Type: "result", Command: cmd.Type, Result: res.String()})
			return
		}
	default:
		err = sess.handleMatchCommand(cmd)
	}

	if err != nil {
		sess.log.WithError(err).Debugf("Rejected %s", cmd.Type)
		sess.send(reply{Type: "error", Command: cmd.Type, Message: err.Error()})
		return
	}
	sess.send(reply{Type: "ok", Command: cmd.Type})
}

// handleMatchCommand runs the commands that act on the user's current match.
func (sess *session) handleMatchCommand(cmd command) error {
	uid := sess.user.ID
	m := sess.s.Matches.ByUser(uid)
	if m == nil {
		if isMatchCommand(cmd.Type) {
			return match.ErrNotInMatch
		}
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
	switch cmd.Type {
	case "leave":
		return m.Leave(uid, cmd.Force)
	case "start":
		return m.Start(uid)
	case "bench":
		return m.SetBenchTo(uid, cmd.Count)
	case "multiplier":
		var n int
		if err := json.Unmarshal(cmd.Value, &n); err != nil {
			return fmt.Errorf("%w: multiplier must be a number", match.ErrInvalidConfig)
		}
		return m.SetMultiplier(uid, n)
	case "option":
		return m.Configure(uid, cmd.Key, rawString(cmd.Value))
	case "interrupt":
		return m.Interrupt(uid, cmd.Want)
	}
	return fmt.Errorf("unknown command type: %s", cmd.Type)
}

func isMatchCommand(t string) bool {
	switch t {
	case "leave", "start", "bench", "multiplier", "option", "interrupt":
		return true
	}
	return false
}

// rawString accepts a JSON string or any other scalar literal as option text.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func userInfo(u *models.User) match.UserInfo {
	return match.UserInfo{ID: u.ID, Name: u.Username, Avatar: u.Avatar}
}
