package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to release a [Capturer] goroutine after the caller has stopped
// consuming its frames.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
