package actors

import "time"

const (
	// LoopPollTimeout bounds how long a loop sleeps in the poller before checking its context.
	LoopPollTimeout = 250 * time.Millisecond

	// LoopEventsLen is the amount of readiness events a loop handles per wakeup.
	LoopEventsLen = 256

	// ReadChunkSize is the size of a single non-blocking read.
	ReadChunkSize = 16 * 1024

	// Inbox
	EndpointManagerInboxChLen = 8

	// Misc

	EManStunTimeout = time.Second * 3
)
