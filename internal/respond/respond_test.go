package respond_test

import (
	"context"
	"testing"

	"github.com/kpfromer/voice-assistant/internal/respond"
)

func TestClean(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "Alexa, what's the time?", "alexa whats the time"},
		{"collapses whitespace", "  too   many\tspaces \n here ", "too many spaces here"},
		{"keeps digits", "set a timer for 10 minutes", "set a timer for 10 minutes"},
		{"strips annotations", "[BLANK_AUDIO] (coughs) alexa", "blankaudio coughs alexa"},
		{"empty", "...", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := respond.Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTriggerMatchExact(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	cmd, ok := m.Match("alexa turn on the lights")
	if !ok {
		t.Fatal("trigger not matched")
	}
	if cmd != "turn on the lights" {
		t.Errorf("command = %q, want %q", cmd, "turn on the lights")
	}
}

func TestTriggerMatchStripsLeadingText(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	cmd, ok := m.Match("um so alexa what time is it")
	if !ok {
		t.Fatal("trigger not matched")
	}
	if cmd != "what time is it" {
		t.Errorf("command = %q, want %q", cmd, "what time is it")
	}
}

func TestTriggerMatchPhoneticTolerance(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	// Common STT mishearings of the trigger word.
	for _, heard := range []string{"alexa", "alexer", "aleksa"} {
		cmd, ok := m.Match(heard + " stop")
		if !ok {
			t.Errorf("mishearing %q not matched", heard)
			continue
		}
		if cmd != "stop" {
			t.Errorf("command for %q = %q, want %q", heard, cmd, "stop")
		}
	}
}

func TestTriggerNoMatch(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	for _, text := range []string{
		"turn on the lights",
		"the weather is nice today",
		"",
	} {
		if cmd, ok := m.Match(text); ok {
			t.Errorf("Match(%q) = (%q, true), want no match", text, cmd)
		}
	}
}

func TestTriggerEarliestOccurrenceWins(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	cmd, ok := m.Match("alexa turn alexa off")
	if !ok {
		t.Fatal("trigger not matched")
	}
	if cmd != "turn alexa off" {
		t.Errorf("command = %q, want %q", cmd, "turn alexa off")
	}
}

func TestTriggerMultiWordPhrase(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("hey computer")

	cmd, ok := m.Match("okay hey computer play music")
	if !ok {
		t.Fatal("multi-word trigger not matched")
	}
	if cmd != "play music" {
		t.Errorf("command = %q, want %q", cmd, "play music")
	}

	if _, ok := m.Match("hey there computer play music"); ok {
		t.Error("split trigger words matched, want consecutive-only matching")
	}
}

func TestTriggerAloneYieldsEmptyCommand(t *testing.T) {
	t.Parallel()

	m := respond.NewTriggerMatcher("alexa")

	cmd, ok := m.Match("alexa")
	if !ok {
		t.Fatal("bare trigger not matched")
	}
	if cmd != "" {
		t.Errorf("command = %q, want empty", cmd)
	}
}

func TestEchoResponder(t *testing.T) {
	t.Parallel()

	var e respond.Echo

	reply, err := e.Respond(context.Background(), "turn on the lights")
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if reply != "You said: turn on the lights." {
		t.Errorf("reply = %q", reply)
	}

	reply, err = e.Respond(context.Background(), "  ")
	if err != nil {
		t.Fatalf("Respond() error: %v", err)
	}
	if reply == "" {
		t.Error("bare-trigger reply is empty, want a prompt for a command")
	}
}
