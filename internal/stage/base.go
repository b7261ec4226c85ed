package stage

// timerCell is shared by every stage of one tree and names the stage that started the
// outstanding timer, so a firing is routed to its starter rather than to whichever stage
// happens to be deepest.
type timerCell struct {
	owner *base
}

type base struct {
	host   Host
	name   string
	over   bool
	reason CheckoutReason
	begun  bool
	cell   *timerCell
}

func newBase(host Host, name string) base {
	return base{host: host, name: name, cell: &timerCell{}}
}

func (b *base) stageBase() *base { return b }

func (b *base) Name() string           { return b.name }
func (b *base) Host() Host             { return b.host }
func (b *base) IsOver() bool           { return b.over }
func (b *base) Reason() CheckoutReason { return b.reason }

// StartTimer starts a timer owned by this stage; its expiration is delivered to this
// stage's HandleTimeout.
func (b *base) StartTimer(seconds int) {
	b.StartTimerWithAlert(seconds, nil)
}

func (b *base) StartTimerWithAlert(seconds int, alert AlertFunc) {
	b.cell.owner = b
	b.host.StartTimer(seconds, alert)
}

// StopTimer cancels the outstanding timer if this stage started it.
func (b *base) StopTimer() {
	if b.cell.owner == b {
		b.cell.owner = nil
		b.host.StopTimer()
	}
}

func (b *base) ownsTimer() bool { return b.cell.owner == b }

// consumeTimer is called when this stage's timer fired.
func (b *base) consumeTimer() {
	if b.cell.owner == b {
		b.cell.owner = nil
	}
}

func (b *base) live(op string) {
	if b.over {
		Fail(b.name, "%s after checkout", op)
	}
}

func (b *base) begin() {
	b.live("begin")
	if b.begun {
		Fail(b.name, "begun twice")
	}
	b.begun = true
}

// finish marks the stage terminal. The flag is only ever set once; the first reason wins.
func (b *base) finish(reason CheckoutReason) {
	if b.over {
		return
	}
	b.StopTimer()
	b.over = true
	b.reason = reason
}

type baser interface {
	stageBase() *base
}
