package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/database"
	"github.com/jason-s-yu/parlor/internal/match"
	"github.com/jason-s-yu/parlor/internal/middleware"
	"github.com/jason-s-yu/parlor/internal/models"
)

// UserStore is the slice of the user table the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
	UpdateUserCredentials(ctx context.Context, u *models.User) error
	UserNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// DatabaseUsers serves UserStore from PostgreSQL.
type DatabaseUsers struct{}

func (DatabaseUsers) CreateUser(ctx context.Context, u *models.User) error {
	return database.CreateUser(ctx, u)
}

func (DatabaseUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return database.GetUserByID(ctx, id)
}

func (DatabaseUsers) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	return database.AuthenticateUser(ctx, email, password)
}

func (DatabaseUsers) UpdateUserCredentials(ctx context.Context, u *models.User) error {
	return database.UpdateUserCredentials(ctx, u)
}

func (DatabaseUsers) UserNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	return database.UserNames(ctx, ids)
}

// Server is the HTTP and WebSocket front of a match Manager.
type Server struct {
	Matches  *match.Manager
	Hub      *Hub
	Users    UserStore
	Log      logrus.FieldLogger
	TokenTTL time.Duration
}

// Routes registers every endpoint on mux, wrapped in request logging.
func (s *Server) Routes(mux *http.ServeMux) {
	wrap := middleware.LogMiddleware(s.Log)
	mux.Handle("/user/create", wrap(http.HandlerFunc(s.CreateUserHandler)))
	mux.Handle("/user/login", wrap(http.HandlerFunc(s.LoginHandler)))
	mux.Handle("/user/claim", wrap(http.HandlerFunc(s.ClaimEphemeralHandler)))
	mux.Handle("/game/list", wrap(http.HandlerFunc(s.ListGamesHandler)))
	mux.Handle("/match/create", wrap(http.HandlerFunc(s.CreateMatchHandler)))
	mux.Handle("/match/list", wrap(http.HandlerFunc(s.ListMatchesHandler)))
	mux.Handle("/match/ws", wrap(http.HandlerFunc(s.MatchWSHandler)))
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}
