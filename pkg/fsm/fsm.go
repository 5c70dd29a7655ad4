// Package fsm provides a table driven finite state machine shared by document lifecycles.
package fsm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is matched by every rejected transition.
var ErrInvalidTransition = errors.New("invalid_transition")

// TransitionError reports the rejected pair of states.
type TransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid_transition: %s from %s", e.Machine, e.From)
	}
	return fmt.Sprintf("invalid_transition: %s %s -> %s", e.Machine, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Table maps (from, event) to the resulting state.
type Table[S ~string, E ~string] struct {
	name     string
	edges    map[S]map[E]S
	order    map[S][]E
	terminal map[S]bool
}

// New builds an empty table for the named machine.
func New[S ~string, E ~string](name string) *Table[S, E] {
	return &Table[S, E]{
		name:     name,
		edges:    make(map[S]map[E]S),
		order:    make(map[S][]E),
		terminal: make(map[S]bool),
	}
}

// On registers from --event--> to.
func (t *Table[S, E]) On(from S, event E, to S) *Table[S, E] {
	if t.edges[from] == nil {
		t.edges[from] = make(map[E]S)
	}
	if _, ok := t.edges[from][event]; !ok {
		t.order[from] = append(t.order[from], event)
	}
	t.edges[from][event] = to
	return t
}

// Terminal marks states with no way out.
func (t *Table[S, E]) Terminal(states ...S) *Table[S, E] {
	for _, s := range states {
		t.terminal[s] = true
	}
	return t
}

// IsTerminal reports whether the state is final.
func (t *Table[S, E]) IsTerminal(state S) bool {
	return t.terminal[state]
}

// Fire returns the state reached from `from` on `event`.
func (t *Table[S, E]) Fire(from S, event E) (S, error) {
	to, ok := t.edges[from][event]
	if !ok {
		var zero S
		return zero, &TransitionError{Machine: t.name, From: string(from), To: string(event)}
	}
	return to, nil
}

// Resolve finds the event that moves `from` into `to`.
func (t *Table[S, E]) Resolve(from, to S) (E, error) {
	for _, event := range t.order[from] {
		if t.edges[from][event] == to {
			return event, nil
		}
	}
	var zero E
	return zero, &TransitionError{Machine: t.name, From: string(from), To: string(to)}
}

// Can reports whether `to` is reachable from `from` in one step.
func (t *Table[S, E]) Can(from, to S) bool {
	_, err := t.Resolve(from, to)
	return err == nil
}

// Targets lists the states reachable from `from`, in registration order.
func (t *Table[S, E]) Targets(from S) []S {
	out := make([]S, 0, len(t.order[from]))
	for _, event := range t.order[from] {
		out = append(out, t.edges[from][event])
	}
	return out
}
