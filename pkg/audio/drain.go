package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent producer goroutine leaks when playback is cancelled
// and the remaining chunks of a stream are no longer needed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
