package guess

import (
	"fmt"
	"strconv"

	"github.com/jason-s-yu/parlor/internal/game"
)

const (
	DefaultRounds  = 3
	DefaultTimeout = 60
	MaxRounds      = 20
)

// Options are the host-configurable settings of a guess match.
type Options struct {
	Rounds  int
	Timeout int // seconds per round
	// Instant ends the match as soon as it begins.
	Instant bool
	// Eliminate removes the farthest guess each round while more than two players remain.
	Eliminate bool
}

func (o *Options) Set(key, value string) error {
	switch key {
	case "rounds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > MaxRounds {
			return fmt.Errorf("rounds must be between 1 and %d", MaxRounds)
		}
		o.Rounds = n
	case "timeout":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("timeout must be a positive number of seconds")
		}
		o.Timeout = n
	case "instant", "eliminate":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
		if key == "instant" {
			o.Instant = b
		} else {
			o.Eliminate = b
		}
	default:
		return fmt.Errorf("%q: %w", key, game.ErrUnknownOption)
	}
	return nil
}

func (o *Options) Describe() string {
	s := fmt.Sprintf("%d rounds, %d seconds per round", o.Rounds, o.Timeout)
	if o.Eliminate {
		s += ", farthest guess eliminated"
	}
	if o.Instant {
		s += ", instant"
	}
	return s
}
