package actors

// Actor is a goroutine owning its own state, driven through its inbox.
type Actor interface {
	Run()

	// Cancel this actor's context.
	Cancel()

	// Close is called by the actor's Run loop when cancelled.
	Close()
}
