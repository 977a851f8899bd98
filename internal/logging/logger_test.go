package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rescale/dualpane/internal/events"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"chatty", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(ModeCLI, nil)
	l.SetOutput(&buf)

	l.Info().Str("pane", "remote").Msg("listing loaded")

	out := buf.String()
	if !strings.Contains(out, "listing loaded") || !strings.Contains(out, "pane=remote") {
		t.Errorf("output = %q, want message and pane field", out)
	}
}

func TestSetLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dualpane.log")

	var buf bytes.Buffer
	l := NewLogger(ModeServer, nil)
	l.SetOutput(&buf)
	l.SetLogFile(path)
	l.Warn().Msg("written to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"written to file"`) {
		t.Errorf("log file = %q, want JSON line", data)
	}
}

func TestErrorsForwardedToEventBus(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	l := NewLogger(ModeServer, bus)
	l.SetOutput(&bytes.Buffer{})
	l.Info().Msg("not forwarded")
	l.Error().Msg("forwarded")

	select {
	case ev := <-ch:
		le := ev.(*events.LogEvent)
		if le.Message != "forwarded" || le.Level != zerolog.ErrorLevel {
			t.Errorf("got %q at %s, want forwarded at ERROR", le.Message, le.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("no log event published")
	}
}
