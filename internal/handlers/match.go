package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/match"
)

// ListGamesHandler lists the titles a match can be created for.
func (s *Server) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Matches.Games())
}

type createMatchRequest struct {
	Game       string            `json:"game"`
	GroupID    uuid.UUID         `json:"groupId"`
	Options    map[string]string `json:"options"`
	BenchTo    int               `json:"benchTo"`
	Multiplier *int              `json:"multiplier"`
}

// CreateMatchHandler creates a match hosted by the requesting user. Options are applied
// in key order; if any is rejected the match is dissolved again.
func (s *Server) CreateMatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u, err := s.EnsureUser(w, r)
	if err != nil {
		s.Log.WithError(err).Error("Failed to resolve user")
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad match request payload", http.StatusBadRequest)
		return
	}

	m, err := s.Matches.NewMatch(req.Game, userInfo(u), req.GroupID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if err := s.configure(m, u.ID, req); err != nil {
		m.Leave(u.ID, false)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, m.Status())
}

func (s *Server) configure(m *match.Match, host uuid.UUID, req createMatchRequest) error {
	keys := make([]string, 0, len(req.Options))
	for k := range req.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.Configure(host, k, req.Options[k]); err != nil {
			return err
		}
	}
	if req.BenchTo > 0 {
		if err := m.SetBenchTo(host, req.BenchTo); err != nil {
			return err
		}
	}
	if req.Multiplier != nil {
		if err := m.SetMultiplier(host, *req.Multiplier); err != nil {
			return err
		}
	}
	return nil
}

// ListMatchesHandler returns a snapshot of every live match. Player names are refreshed
// from the user table, since a guest may have claimed an account after joining.
func (s *Server) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	list := s.Matches.List()
	out := make([]match.Status, 0, len(list))
	var ids []uuid.UUID
	for _, m := range list {
		st := m.Status()
		for _, p := range st.Players {
			if !p.Computer {
				ids = append(ids, p.UserID)
			}
		}
		out = append(out, st)
	}

	names, err := s.Users.UserNames(r.Context(), ids)
	if err != nil {
		s.Log.WithError(err).Warn("Failed to resolve player names")
		names = nil
	}
	for i := range out {
		for j := range out[i].Players {
			p := &out[i].Players[j]
			if name, ok := names[p.UserID]; ok && !p.Computer {
				p.Name = name
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps a match user error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, match.ErrUnknownGame), errors.Is(err, match.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, match.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, match.ErrNotInMatch):
		return http.StatusNotFound
	case errors.Is(err, match.ErrAlreadyInMatch), errors.Is(err, match.ErrGroupBusy),
		errors.Is(err, match.ErrAlreadyStarted), errors.Is(err, match.ErrPlayerCap):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
