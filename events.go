package ksatagent

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const dataPrefix = "data: "

// maxLineSize bounds a single event line; a complete event carries the whole artifact
const maxLineSize = 8 << 20

type eventWire struct {
	Type           string          `json:"type"`
	Step           Step            `json:"step"`
	QuestionNumber int             `json:"question_number"`
	Status         EventStatus     `json:"status"`
	Result         json.RawMessage `json:"result"`
	Message        string          `json:"message"`
}

// ParseEventLine parses one line of the event protocol. Lines without the
// data prefix return ok=false and no error.
func ParseEventLine(line string) (ev GenerationEvent, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false, nil
	}
	payload := line[len(dataPrefix):]

	var w eventWire
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, true, &ProtocolError{Line: line, Reason: "invalid json", Err: err}
	}

	switch w.Type {
	case "progress":
		switch w.Step {
		case StepCard, StepPassage, StepQuestion:
		default:
			return nil, true, &ProtocolError{Line: line, Reason: fmt.Sprintf("unknown step %q", w.Step)}
		}
		switch w.Status {
		case EventStart, EventComplete:
		default:
			return nil, true, &ProtocolError{Line: line, Reason: fmt.Sprintf("unknown status %q", w.Status)}
		}
		return ProgressEvent{Step: w.Step, QuestionNumber: w.QuestionNumber, Status: w.Status}, true, nil
	case "complete":
		var a Artifact
		if len(w.Result) == 0 || string(w.Result) == "null" {
			return nil, true, &ProtocolError{Line: line, Reason: "complete event without result"}
		}
		if err := json.Unmarshal(w.Result, &a); err != nil {
			return nil, true, &ProtocolError{Line: line, Reason: "invalid result", Err: err}
		}
		return ResultEvent{Artifact: &a}, true, nil
	case "error":
		return FailureEvent{Message: w.Message}, true, nil
	default:
		return nil, true, &ProtocolError{Line: line, Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}
}

// EventStream is a lazy, finite, non-restartable sequence of events read from
// a response body.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool

	// OnLine, when set, receives every raw line before parsing
	OnLine func(line string)

	lastProtocolErr error
}

// NewEventStream wraps body. The stream owns body and closes it on Close.
func NewEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &EventStream{body: body, scanner: scanner}
}

// Next returns the next event. It returns io.EOF once a terminal event has been
// returned. Malformed data lines are skipped. A read failure, or a body that
// ends before any terminal event, returns a *TransportError; if the last data
// line before that end was malformed an *ApplicationFailure is returned instead.
func (s *EventStream) Next() (GenerationEvent, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if s.OnLine != nil {
			s.OnLine(line)
		}
		ev, ok, err := ParseEventLine(line)
		if !ok {
			continue
		}
		if err != nil {
			Logger().Warnw("skipping malformed event line", "error", err)
			s.lastProtocolErr = err
			continue
		}
		s.lastProtocolErr = nil
		switch ev.(type) {
		case ResultEvent, FailureEvent:
			s.done = true
		}
		return ev, nil
	}
	s.done = true

	if err := s.scanner.Err(); err != nil {
		return nil, &TransportError{Op: "read stream", Err: err}
	}
	if s.lastProtocolErr != nil {
		return nil, &ApplicationFailure{Message: GenericFailureMessage}
	}
	return nil, &TransportError{Op: "read stream", Err: errors.New("stream closed before a terminal event")}
}

// Close releases the underlying body
func (s *EventStream) Close() error {
	s.done = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}
