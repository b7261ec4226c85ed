package stage

// CompositeLogic is the game-specific part of a composite stage. FirstStage and NextStage
// are required; embed DefaultComposite for the rest.
type CompositeLogic interface {
	FirstStage(c *Composite) Stage
	// NextStage is called once the active child checked out. Returning nil ends the
	// composite with the finished child's reason.
	NextStage(c *Composite, finished Stage, reason CheckoutReason) Stage

	// HandleRequest sees only requests the active child answered with NotFound.
	HandleRequest(c *Composite, pid PlayerID, public bool, msg string) Result
	// HandleTimeout runs when a timer the composite itself started expires.
	HandleTimeout(c *Composite) Result
	// HandleLeave runs after the child has seen the departure, if the composite is still live.
	HandleLeave(c *Composite, pid PlayerID) Result
}

// DefaultComposite supplies the optional CompositeLogic hooks.
type DefaultComposite struct{}

func (DefaultComposite) HandleRequest(*Composite, PlayerID, bool, string) Result { return NotFound }
func (DefaultComposite) HandleTimeout(*Composite) Result { return Checkout }
func (DefaultComposite) HandleLeave(*Composite, PlayerID) Result { return OK }

// Composite holds exactly one active child stage at a time.
type Composite struct {
	base
	logic     CompositeLogic
	allowed   map[string]bool
	child     Stage
	switching bool
}

// NewComposite builds a composite. When allowed is non-empty, asking for a child whose
// Name is not listed is a structural error.
func NewComposite(host Host, name string, logic CompositeLogic, allowed ...string) *Composite {
	c := &Composite{base: newBase(host, name), logic: logic}
	if len(allowed) > 0 {
		c.allowed = make(map[string]bool, len(allowed))
		for _, a := range allowed {
			c.allowed[a] = true
		}
	}
	return c
}

func (c *Composite) Logic() CompositeLogic { return c.logic }

// Child returns the active child, or nil before OnBegin.
func (c *Composite) Child() Stage { return c.child }

// Allowed lists the declared child kinds.
func (c *Composite) Allowed() []string {
	kinds := make([]string, 0, len(c.allowed))
	for k := range c.allowed {
		kinds = append(kinds, k)
	}
	return kinds
}

// Checkout ends the composite immediately, abandoning the active child.
func (c *Composite) Checkout() {
	c.end(ByRequest)
}

func (c *Composite) OnBegin() {
	c.begin()
	first := c.logic.FirstStage(c)
	if first == nil {
		c.end(ByRequest)
		return
	}
	c.enter(first)
	if !c.over && first.IsOver() {
		c.advance(first)
	}
}

func (c *Composite) HandleRequest(pid PlayerID, public bool, msg string) Result {
	c.live("request")
	r := c.child.HandleRequest(pid, public, msg)
	if r != NotFound {
		return c.afterChild(r)
	}
	return c.own(c.logic.HandleRequest(c, pid, public, msg), ByRequest)
}

func (c *Composite) HandleTimeout() Result {
	c.live("timeout")
	if c.ownsTimer() {
		c.consumeTimer()
		return c.own(c.logic.HandleTimeout(c), ByTimeout)
	}
	return c.afterChild(c.child.HandleTimeout())
}

func (c *Composite) HandleLeave(pid PlayerID) Result {
	c.live("leave")
	r := c.afterChild(c.child.HandleLeave(pid))
	if c.over {
		return Checkout
	}
	if own := c.own(c.logic.HandleLeave(c, pid), ByLeave); own != OK {
		return own
	}
	return r
}

func (c *Composite) HandleComputerAct(pid PlayerID, asIfUser bool) Result {
	c.live("computer act")
	return c.afterChild(c.child.HandleComputerAct(pid, asIfUser))
}

func (c *Composite) Reconcile() Result {
	c.live("reconcile")
	return c.afterChild(c.child.Reconcile())
}

func (c *Composite) HoldsTimer() bool {
	return c.ownsTimer() || (c.child != nil && c.child.HoldsTimer())
}

func (c *Composite) own(r Result, reason CheckoutReason) Result {
	if c.over {
		return Checkout
	}
	if r == Checkout {
		c.end(reason)
	}
	return r
}

func (c *Composite) afterChild(r Result) Result {
	if c.over {
		return Checkout
	}
	if !c.child.IsOver() {
		return r
	}
	return c.advance(c.child)
}

// advance asks for successors until one stays live or the logic has none left. Children
// that complete inside their own OnBegin are chained through here as well.
func (c *Composite) advance(finished Stage) Result {
	for {
		if c.switching {
			Fail(c.name, "next stage requested while %q is still starting", c.child.Name())
		}
		next := c.logic.NextStage(c, finished, finished.Reason())
		if c.over {
			return Checkout
		}
		if next == nil {
			c.end(finished.Reason())
			return Checkout
		}
		c.enter(next)
		if c.over {
			return Checkout
		}
		if !next.IsOver() {
			return Continue
		}
		finished = next
	}
}

// enter begins next as the only active child. A timer still held by the previous child is
// cancelled first.
func (c *Composite) enter(next Stage) {
	if c.switching {
		Fail(c.name, "child %q started while another child is starting", next.Name())
	}
	if c.allowed != nil && !c.allowed[next.Name()] {
		Fail(c.name, "unknown child stage %q", next.Name())
	}
	if c.child != nil && !c.child.IsOver() {
		Fail(c.name, "child %q replaced before checkout", c.child.Name())
	}
	if c.child != nil && c.child.HoldsTimer() {
		c.cell.owner = nil
		c.host.StopTimer()
	}
	if nb, ok := next.(baser); ok {
		nb.stageBase().cell = c.cell
	}

	c.switching = true
	defer func() { c.switching = false }()
	c.child = next
	next.OnBegin()
}

func (c *Composite) end(reason CheckoutReason) {
	if c.over {
		return
	}
	if c.HoldsTimer() {
		c.cell.owner = nil
		c.host.StopTimer()
	}
	c.finish(reason)
}
