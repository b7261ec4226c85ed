package stage

// AtomicLogic is the game-specific part of a leaf stage. Embed DefaultAtomic to pick up
// defaults for the hooks a game does not care about.
type AtomicLogic interface {
	OnBegin(s *Atomic)
	HandleRequest(s *Atomic, pid PlayerID, public bool, msg string) Result
	HandleTimeout(s *Atomic) Result
	HandleLeave(s *Atomic, pid PlayerID) Result
	HandleComputerAct(s *Atomic, pid PlayerID, asIfUser bool) Result
	// OnAllReady runs when the ready mask covers every active player. Returning Continue
	// clears the mask for another inner round; Checkout ends the stage.
	OnAllReady(s *Atomic) Result
}

// DefaultAtomic gives every AtomicLogic hook a neutral default.
type DefaultAtomic struct{}

func (DefaultAtomic) OnBegin(*Atomic) {}
func (DefaultAtomic) HandleRequest(*Atomic, PlayerID, bool, string) Result { return NotFound }
func (DefaultAtomic) HandleTimeout(*Atomic) Result { return Checkout }
func (DefaultAtomic) HandleLeave(*Atomic, PlayerID) Result { return OK }
func (DefaultAtomic) HandleComputerAct(*Atomic, PlayerID, bool) Result { return OK }
func (DefaultAtomic) OnAllReady(*Atomic) Result { return Checkout }

// Atomic is a leaf stage.
type Atomic struct {
	base
	logic AtomicLogic
	ready ReadyMask
}

func NewAtomic(host Host, name string, logic AtomicLogic) *Atomic {
	return &Atomic{base: newBase(host, name), logic: logic}
}

// Logic returns the game logic wrapped by this stage.
func (s *Atomic) Logic() AtomicLogic { return s.logic }

// IsReady reports whether pid already acted in the current all-ready round.
func (s *Atomic) IsReady(pid PlayerID) bool { return s.ready.Has(pid) }

// UnsetReady lets pid act again in the current round.
func (s *Atomic) UnsetReady(pid PlayerID) { s.ready.Unset(pid) }

// ReadyCount is the number of players marked ready in the current round.
func (s *Atomic) ReadyCount() int { return s.ready.Count() }

// Checkout ends the stage immediately; calling it from OnBegin completes the stage
// before any event reaches it.
func (s *Atomic) Checkout() {
	s.finish(ByRequest)
}

func (s *Atomic) OnBegin() {
	s.begin()
	s.logic.OnBegin(s)
}

func (s *Atomic) HandleRequest(pid PlayerID, public bool, msg string) Result {
	s.live("request")
	r := s.logic.HandleRequest(s, pid, public, msg)
	return s.settle(pid, r, ByRequest)
}

func (s *Atomic) HandleComputerAct(pid PlayerID, asIfUser bool) Result {
	s.live("computer act")
	if s.host.PlayerState(pid) == Eliminated || s.ready.Has(pid) {
		return OK
	}
	r := s.logic.HandleComputerAct(s, pid, asIfUser)
	return s.settle(pid, r, ByRequest)
}

func (s *Atomic) HandleTimeout() Result {
	s.live("timeout")
	s.consumeTimer()
	r := s.logic.HandleTimeout(s)
	if s.over {
		return Checkout
	}
	if r == Checkout {
		s.finish(ByTimeout)
	}
	return r
}

func (s *Atomic) HandleLeave(pid PlayerID) Result {
	s.live("leave")
	r := s.logic.HandleLeave(s, pid)
	if s.over {
		return Checkout
	}
	if r != Checkout {
		r = s.checkAllReady(r)
	}
	if r == Checkout {
		s.finish(ByLeave)
	}
	return r
}

func (s *Atomic) Reconcile() Result {
	s.live("reconcile")
	r := s.checkAllReady(OK)
	if r == Checkout {
		s.finish(ByRequest)
	}
	return r
}

func (s *Atomic) HoldsTimer() bool { return s.ownsTimer() }

func (s *Atomic) settle(pid PlayerID, r Result, reason CheckoutReason) Result {
	if s.over {
		return Checkout
	}
	if r == Ready {
		s.ready.Set(pid)
		r = s.checkAllReady(r)
	}
	if r == Checkout {
		s.finish(reason)
	}
	return r
}

// checkAllReady consults OnAllReady once the mask is full and returns fallback otherwise.
func (s *Atomic) checkAllReady(fallback Result) Result {
	if !s.ready.Covers(s.host) {
		return fallback
	}
	r := s.logic.OnAllReady(s)
	if s.over {
		return Checkout
	}
	switch r {
	case Checkout:
		return Checkout
	case Continue:
		s.ready.Clear()
		return Continue
	}
	return fallback
}
