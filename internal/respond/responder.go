package respond

import (
	"context"
	"strings"
)

// Responder turns a recognised command into the reply the assistant speaks.
// Implementations may consult anything from a canned table to an external
// service; the pipeline only cares about the text that comes back.
type Responder interface {
	// Respond produces the spoken reply for a command. An empty reply means
	// the assistant stays quiet. Blocking implementations must honour ctx.
	Respond(ctx context.Context, command string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, command string) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// Echo is the built-in responder: it acknowledges the command by repeating
// it back. Useful as a wiring smoke test before a real responder is
// configured.
type Echo struct{}

// Respond repeats the command back, or asks for one when the trigger phrase
// arrived alone.
func (Echo) Respond(_ context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "Yes? I did not catch a command.", nil
	}
	return "You said: " + command + ".", nil
}

var _ Responder = Echo{}
var _ Responder = ResponderFunc(nil)
