// Package reactor provides readiness notification for non-blocking sockets.
//
// A Poller watches file descriptors, each registered under a Token, and reports which of them
// became readable, writable, or failed. The Reactor subset is what state machines use to
// (re)arm and drop their own registrations.
package reactor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Token identifies a registration. WakeToken is reserved for the poller itself.
type Token uint32

const WakeToken Token = 0

// EventSet is both an interest mask and a readiness mask.
type EventSet uint8

const (
	Readable EventSet = 1 << iota
	Writable
	Error
	Hup
)

func (e EventSet) IsReadable() bool { return e&Readable != 0 }
func (e EventSet) IsWritable() bool { return e&Writable != 0 }
func (e EventSet) IsError() bool    { return e&Error != 0 }
func (e EventSet) IsHup() bool      { return e&Hup != 0 }

func (e EventSet) String() string {
	var parts []string
	for _, b := range []struct {
		bit  EventSet
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{Error, "error"},
		{Hup, "hup"},
	} {
		if e&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// PollOpt selects the trigger mode of a registration.
type PollOpt uint8

const (
	Level PollOpt = iota
	// Edge only reports transitions, the owner must drain a socket until it would block.
	Edge
	// Oneshot disables the registration after one event, until it is reregistered.
	Oneshot
)

func (p PollOpt) String() string {
	switch p {
	case Level:
		return "level"
	case Edge:
		return "edge"
	case Oneshot:
		return "oneshot"
	default:
		return fmt.Sprintf("PollOpt(%d)", uint8(p))
	}
}

var (
	ErrUnsupported = errors.New("no poller available on this platform")
	ErrReserved    = errors.New("token is reserved")
	ErrClosed      = errors.New("poller is closed")
)

// Reactor is what a socket owner needs to manage its registration.
type Reactor interface {
	Register(fd int, token Token, interest EventSet, opt PollOpt) error
	Reregister(fd int, token Token, interest EventSet, opt PollOpt) error
	Deregister(fd int) error
}

// Event is one readiness notification.
type Event struct {
	Token  Token
	Events EventSet
}

// Poller is a Reactor that can be waited on.
type Poller interface {
	Reactor

	// Wait blocks until at least one registration is ready, Wake is called, or the timeout passes.
	// It fills events and returns how many it filled. Wakeups are not reported as events.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wake interrupts a concurrent or the next Wait. It is safe to call from any goroutine.
	Wake() error

	Close() error
}
