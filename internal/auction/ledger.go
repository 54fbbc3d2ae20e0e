package auction

// BidRound is the ordered sequence of bids belonging to one auction.
type BidRound []Bid

func (r BidRound) clone() BidRound {
	out := make(BidRound, len(r))
	copy(out, r)
	return out
}

// Ledger is the append-only record of bid rounds. At most one round is open
// at a time; sealing moves it into the history where it is never modified.
type Ledger struct {
	sealed []BidRound
	open   BidRound
	isOpen bool
}

// Open starts a new round. Opening an already-open round is a no-op.
func (l *Ledger) Open() {
	if l.isOpen {
		return
	}
	l.open = BidRound{}
	l.isOpen = true
}

// Record appends a bid to the open round.
func (l *Ledger) Record(b Bid) {
	if !l.isOpen {
		l.Open()
	}
	l.open = append(l.open, b)
}

// Seal closes the open round and pushes it onto the history.
func (l *Ledger) Seal() {
	if !l.isOpen {
		return
	}
	l.sealed = append(l.sealed, l.open)
	l.open = nil
	l.isOpen = false
}

// Current returns a copy of the open round.
func (l *Ledger) Current() (BidRound, bool) {
	if !l.isOpen {
		return nil, false
	}
	return l.open.clone(), true
}

// Last returns the most recent bid of the open round.
func (l *Ledger) Last() (Bid, bool) {
	if !l.isOpen || len(l.open) == 0 {
		return Bid{}, false
	}
	return l.open[len(l.open)-1], true
}

// Rounds returns a copy of the sealed history, oldest first.
func (l *Ledger) Rounds() []BidRound {
	out := make([]BidRound, len(l.sealed))
	for i, r := range l.sealed {
		out[i] = r.clone()
	}
	return out
}

// Len is the number of sealed rounds.
func (l *Ledger) Len() int {
	return len(l.sealed)
}
