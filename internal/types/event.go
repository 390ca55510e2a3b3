package types

import (
	"fmt"
	"time"
)

type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventInput
	EventState
	EventReload
	EventTime
	EventWidget
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventInvalid:
		return "Invalid"
	case EventInput:
		return "Input"
	case EventState:
		return "State"
	case EventReload:
		return "Reload"
	case EventTime:
		return "Time"
	case EventWidget:
		return "Widget"
	case EventStop:
		return "Stop"
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

type Event struct {
	Input InputEvent
	Kind  EventKind
}

func (e *Event) String() string {
	inner := ""
	if e.Kind == EventInput {
		inner = fmt.Sprintf(" source=%s key=%q up=%t", e.Input.Source, rune(e.Input.Key), e.Input.Up)
	}
	return fmt.Sprintf("Event(%s%s)", e.Kind.String(), inner)
}

// InputKey is character produced by a key, sources translate scan codes.
type InputKey uint16

type InputEvent struct {
	Source string
	Key    InputKey
	Up     bool
	At     time.Time
}

func (e *InputEvent) IsZero() bool  { return e.Key == 0 }
func (e *InputEvent) IsDigit() bool { return e.Key >= '0' && e.Key <= '9' }
func (e *InputEvent) Char() string  { return string(rune(e.Key)) }
