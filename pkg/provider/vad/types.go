package vad

// Decision is the per-frame classification result of a VAD session.
type Decision struct {
	// Speech is true when the frame is classified as speech.
	Speech bool

	// Probability is the speech probability score (0.0–1.0). Energy-based
	// backends report smoothed normalised energy here.
	Probability float64
}
