package rstp

import (
	"fmt"
	"log/slog"
)

// This file holds the state machine driver. Every machine keeps a single
// current state whose zero value is the BEGIN pseudostate. step evaluates
// the exit conditions of the current state and performs at most one
// transition, running the entry actions of the new state. A settle runs
// passes over all machines until a full pass makes no transition, which
// gives the "each procedure completes before the next begins" semantics
// of 17.16 without any ordering assumptions between machines.

// machine is one state machine instance.
type machine interface {
	// reset returns the machine to BEGIN without running any action.
	reset()

	// step performs at most one transition and reports whether it did.
	step() bool
}

// maxSettlePasses bounds a settle. Reaching it means two machines keep
// re-enabling each other, which is a defect in the machine definitions.
const maxSettlePasses = 256

// settle runs passes until the machines reach a fixpoint and returns the
// number of transitions taken.
func (b *Bridge) settle() int {
	total := 0
	for range maxSettlePasses {
		n := b.pass()
		if n == 0 {
			return total
		}
		total += n
	}

	b.logger.Error("state machines did not settle",
		slog.Int("passes", maxSettlePasses),
		slog.Int("transitions", total),
		slog.Bool("defect", true),
	)
	return total
}

// pass steps Role Selection once and then every machine of every port
// once, in port order.
func (b *Bridge) pass() int {
	n := 0
	if b.rolesel.step() {
		n++
	}
	for _, p := range b.ports {
		for _, m := range p.machines() {
			if m.step() {
				n++
			}
		}
	}
	return n
}

// trace logs a transition at debug level.
func trace(logger *slog.Logger, machine string, from, to fmt.Stringer) {
	logger.Debug("state transition",
		slog.String("machine", machine),
		slog.Any("from", from),
		slog.Any("to", to),
	)
}

// stateName maps a state value to its diagnostic name.
func stateName(names []string, s uint8) string {
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf(unknownFmt, s)
}
