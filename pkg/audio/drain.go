package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a chunked [Stream] is abandoned
// before it was fully written.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
