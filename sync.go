package completion

// Sync creates an event, passes it to fn and blocks until the event is done.
// The event is destroyed before Sync returns.
//
// fn is expected to start asynchronous work that activates and completes the
// event, or to make the event into a set.
func Sync(fn func(*Event), options ...Option) {
	e := New(options...)
	fn(e)
	e.Wait()
	e.Destroy()
}
