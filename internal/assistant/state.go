package assistant

// State is the assistant's position in the interaction cycle. Exactly one
// state is active at a time; transitions happen only on the driver
// goroutine.
type State int

const (
	// StateListening means no speech is being captured and no response is in
	// flight. The microphone is open and frames are being classified.
	StateListening State = iota

	// StateCapturing means a confirmed utterance is accumulating.
	StateCapturing

	// StateTranscribing means a sealed utterance is being processed (STT and
	// reply generation) and no audio is playing yet.
	StateTranscribing

	// StateResponding means synthesised audio is playing. Capture continues
	// in this state so the user can barge in.
	StateResponding
)

// String returns the lowercase state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}
