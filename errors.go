package ksatagent

import (
	"errors"
	"fmt"
	"strings"
)

// GenericFailureMessage is reported when the stream ends on an unreadable line
const GenericFailureMessage = "생성 결과를 해석할 수 없습니다"

// TransportError means the stream could not be established or maintained
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error during %s", e.Op)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means a data line was not a well-formed event
type ProtocolError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event line (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event line: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ApplicationFailure is a well-formed error event reported by the Backend
type ApplicationFailure struct {
	Message string
}

func (e *ApplicationFailure) Error() string {
	return fmt.Sprintf("generation failed: %s", e.Message)
}

// HTTPError is a non-2xx response from the Backend
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, body)
}

// UserMessage returns the message shown to the user for err
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var failure *ApplicationFailure
	if errors.As(err, &failure) {
		return "생성 중 오류: " + failure.Message
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return "백엔드 서버와 연결할 수 없습니다: " + transport.Error()
	}
	return "오류: " + err.Error()
}
