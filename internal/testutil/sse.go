package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is one parsed Server-Sent Event.
type SSEEvent struct {
	Type string
	Data string
}

// ParseSSEEvents parses a raw SSE response body into events. Multiple
// data: lines are joined with newline, a blank line terminates an
// event, and data without a preceding event: line gets the default
// type "message". Comment lines (":") are skipped.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events  []SSEEvent
		current SSEEvent
		data    []string
	)

	flush := func() {
		if current.Type == "" && len(data) == 0 {
			return
		}
		current.Data = strings.Join(data, "\n")
		events = append(events, current)
		current = SSEEvent{}
		data = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			data = append(data, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			// comment, ignore
		default:
			t.Fatalf("unexpected SSE line: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan SSE body: %v", err)
	}
	flush()
	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns every event of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
