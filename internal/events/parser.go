package events

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single stream line.
const maxLineSize = 1 << 20

// Event is one complete event from the stream.
type Event struct {
	Type string
	Data string
}

// Parse reads the stream until EOF or a read error and calls dispatch for
// every complete event. An event is complete at a blank line and only if
// both a type and at least one data line were seen.
//
// Returns nil on clean EOF.
func Parse(r io.Reader, dispatch func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var (
		eventType string
		data      []string
	)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case strings.HasPrefix(line, ":"):
			// Keepalive.
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		case line == "":
			if eventType != "" && len(data) > 0 {
				dispatch(Event{Type: eventType, Data: strings.Join(data, "\n")})
			}
			eventType = ""
			data = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}
