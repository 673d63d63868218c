package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/opd-ai/opustranscode/metrics"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateHeaderPending
	StateReady
	StateDraining
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateHeaderPending: "header_pending",
	StateReady:         "ready",
	StateDraining:      "draining",
	StateFailed:        "failed",
	StateClosed:        "closed",
}

// String returns the state name used by the state machine and in metrics.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func stateFromString(name string) State {
	for s, n := range stateNames {
		if n == name {
			return State(s)
		}
	}
	return StateUninitialized
}

// Events
const (
	eventOpen         = "open"
	eventAcceptHeader = "accept_header"
	eventDrain        = "drain"
	eventResume       = "resume"
	eventFlush        = "flush"
	eventFail         = "fail"
	eventClose        = "close"
)

func newStateMachine(id uint64) *fsm.FSM {
	uninitialized := StateUninitialized.String()
	pending := StateHeaderPending.String()
	ready := StateReady.String()
	draining := StateDraining.String()
	failed := StateFailed.String()

	return fsm.NewFSM(
		uninitialized,
		fsm.Events{
			{Name: eventOpen, Src: []string{uninitialized}, Dst: pending},
			{Name: eventAcceptHeader, Src: []string{pending}, Dst: ready},
			{Name: eventDrain, Src: []string{ready}, Dst: draining},
			{Name: eventResume, Src: []string{draining}, Dst: ready},
			{Name: eventFlush, Src: []string{ready, draining}, Dst: ready},
			{Name: eventFail, Src: []string{pending}, Dst: failed},
			{Name: eventClose, Src: []string{uninitialized, pending, ready, draining, failed}, Dst: StateClosed.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.DecoderStateTransitionsTotal.WithLabelValues(e.Src, e.Dst).Inc()
				logrus.WithFields(logrus.Fields{
					"function": "decoder.stateMachine",
					"decoder":  id,
					"event":    e.Event,
					"from":     e.Src,
					"to":       e.Dst,
				}).Debug("Decoder state changed")
			},
		},
	)
}

// fire runs event on the state machine. A transition to the current state
// is not an error.
func fire(sm *fsm.FSM, event string) error {
	err := sm.Event(context.Background(), event)
	var same fsm.NoTransitionError
	if err == nil || errors.As(err, &same) {
		return nil
	}
	return fmt.Errorf("decoder event %q in state %s: %w", event, sm.Current(), err)
}
