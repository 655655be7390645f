package gameserver

import (
	"sync"
	"time"
)

// Runtime is the live-server control boundary. Every method that
// observes or mutates live server state goes through here; the engine
// never talks to the server process directly.
type Runtime interface {
	// Broadcast sends a text message to all connected players
	Broadcast(message string) error
	// KickAll disconnects every connected player with an explanatory message
	KickAll(message string) error
	// OnlinePlayers returns the names of currently connected players
	OnlinePlayers() ([]string, error)
	// DispatchCommand runs a console-equivalent command (e.g. "restart")
	DispatchCommand(command string) error
	// VersionString returns the server's self-reported version string
	VersionString() (string, error)
}

// Scheduler runs callbacks after a delay or on a fixed period. The
// engine's tick loops and the install countdown cascade are built on it
// so tests can substitute a synchronous fake.
type Scheduler interface {
	// After runs fn once after the delay; the returned func cancels it
	After(d time.Duration, fn func()) (cancel func())
	// Every runs fn on a fixed period until the returned func is called
	Every(d time.Duration, fn func()) (stop func())
}

// ClockScheduler is the production Scheduler backed by the wall clock
type ClockScheduler struct{}

// NewClockScheduler creates a wall-clock scheduler
func NewClockScheduler() *ClockScheduler {
	return &ClockScheduler{}
}

// After runs fn once after the delay
func (s *ClockScheduler) After(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// Every runs fn on a fixed period until stopped
func (s *ClockScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
