package core

import (
	"errors"
	"fmt"
)

// ErrModelCallLimit is wrapped by CallBudget.Spend once a turn has used up its
// model calls.
var ErrModelCallLimit = errors.New("model call limit exceeded")

// CallBudget counts the model calls of a single turn. A tool round trip costs
// one call, so the budget bounds how long an assistant may loop on tools
// before it must answer. The zero Max means unlimited.
type CallBudget struct {
	Max  int
	used int
}

// Spend records one call. It fails without recording when the budget is
// exhausted.
func (b *CallBudget) Spend() error {
	if b.Max > 0 && b.used >= b.Max {
		return fmt.Errorf("%w: %d calls per turn", ErrModelCallLimit, b.Max)
	}
	b.used++
	return nil
}

// Used reports the calls spent so far.
func (b *CallBudget) Used() int { return b.used }

// Left reports the calls still available, or -1 when unlimited.
func (b *CallBudget) Left() int {
	if b.Max <= 0 {
		return -1
	}
	return b.Max - b.used
}
