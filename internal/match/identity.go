package match

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/stage"
)

// Identity is who occupies a seat: a UserIdentity or a ComputerIdentity.
type Identity interface {
	isIdentity()
}

type UserIdentity struct {
	ID uuid.UUID
}

type ComputerIdentity struct {
	// Index counts computer seats from 0.
	Index int
}

func (UserIdentity) isIdentity()     {}
func (ComputerIdentity) isIdentity() {}

// Player is one seat of a started match.
type Player struct {
	Identity Identity
	State    stage.PlayerState
}

// UserInfo is what the dispatcher knows about a user taking part in a match.
type UserInfo struct {
	ID     uuid.UUID
	Name   string
	Avatar string
}

// member is a human participant. seat is -1 until the match starts.
type member struct {
	UserInfo
	seat           stage.PlayerID
	left           bool
	wantsInterrupt bool
}

func computerName(index int) string {
	return fmt.Sprintf("Computer #%d", index+1)
}
