package handler

import (
	"bytes"
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

func TestEventLoggerAppendsLineAtomicJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "events.jsonl")

	logger, err := NewEventLogger(path)
	if err != nil {
		t.Fatalf("NewEventLogger: %v", err)
	}
	defer logger.Close()

	events := []model.AnomalyEvent{
		{Timestamp: time.Now(), Type: model.CPUSpike, Severity: model.SeverityWarning, Message: "one"},
		{Timestamp: time.Now(), Type: model.MemorySpike, Severity: model.SeverityCritical, Message: "two"},
	}
	for _, e := range events {
		if err := logger.OnEvent(e); err != nil {
			t.Fatalf("OnEvent: %v", err)
		}
	}
	logger.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var got model.AnomalyEvent
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Message != "one" {
		t.Errorf("message = %q, want one", got.Message)
	}
}

func TestConsoleHandlerRendersMessage(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleHandler(&buf)

	if err := c.OnEvent(model.AnomalyEvent{Type: model.CPUSpike, Severity: model.SeverityCritical, Message: "hot"}); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if !strings.Contains(buf.String(), "hot") {
		t.Errorf("output = %q, want it to contain the message", buf.String())
	}
}

func TestConsoleHandlerErrorRendersLikeWarning(t *testing.T) {
	var bufWarn, bufErr bytes.Buffer
	cw := NewConsoleHandler(&bufWarn)
	ce := NewConsoleHandler(&bufErr)

	_ = cw.OnEvent(model.AnomalyEvent{Type: model.LogError, Severity: model.SeverityWarning, Message: "x"})
	_ = ce.OnEvent(model.AnomalyEvent{Type: model.LogError, Severity: model.SeverityError, Message: "x"})

	wantColorPrefix := bufWarn.String()[:len(colorYellow)]
	gotColorPrefix := bufErr.String()[:len(colorYellow)]
	if wantColorPrefix != gotColorPrefix {
		t.Errorf("ERROR should render with the same color as WARNING")
	}
}

func TestRateLimiterFiresOncePerEpisode(t *testing.T) {
	var fired int
	rl := NewRateLimiter(2, func(count int, window time.Duration) { fired++ })

	for i := 0; i < 5; i++ {
		_ = rl.OnEvent(model.AnomalyEvent{Timestamp: time.Now()})
	}
	if fired != 1 {
		t.Errorf("fired = %d, want exactly 1 (single dampening notice per episode)", fired)
	}
}

func TestRateLimiterDoesNotDropEvents(t *testing.T) {
	rl := NewRateLimiter(1, func(int, time.Duration) {})
	for i := 0; i < 10; i++ {
		if err := rl.OnEvent(model.AnomalyEvent{}); err != nil {
			t.Fatalf("OnEvent: %v", err)
		}
	}
}

type fakeInvestigator struct {
	events []model.AnomalyEvent
}

func (f *fakeInvestigator) Submit(e model.AnomalyEvent) {
	f.events = append(f.events, e)
}

func TestInvestigationDispatcherForwardsEvent(t *testing.T) {
	inv := &fakeInvestigator{}
	d := NewInvestigationDispatcher(inv)

	event := model.AnomalyEvent{Message: "forward me"}
	if err := d.OnEvent(event); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if len(inv.events) != 1 || inv.events[0].Message != "forward me" {
		t.Errorf("investigator received %+v", inv.events)
	}
}
