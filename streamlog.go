package ksatagent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StreamLogger writes the raw event transcript of one generation job to a file
type StreamLogger struct {
	file      *os.File
	mu        sync.Mutex
	requestID string
}

// NewStreamLogger creates a transcript log for a job under dir
func NewStreamLogger(dir, requestID string, req GenerationRequest) (*StreamLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", requestID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &StreamLogger{
		file:      file,
		requestID: requestID,
	}

	logger.Logf("=== Generation Stream Log ===\n")
	logger.Logf("Request ID: %s\n", requestID)
	logger.Logf("Field: %s / %s\n", req.Field, req.Subfield)
	logger.Logf("Passage Type: %s\n", req.PassageType)
	if req.Subject != nil {
		logger.Logf("Subject: %s\n", *req.Subject)
	}
	if req.Points != nil {
		logger.Logf("Points: %s\n", *req.Points)
	}
	logger.Logf("Number of Questions: %d\n", len(req.Questions))
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("=============================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (sl *StreamLogger) Logf(format string, args ...interface{}) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.logLocked(format, args...)
}

func (sl *StreamLogger) logLocked(format string, args ...interface{}) {
	if sl.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(sl.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	sl.file.Sync()
}

// LogLine records one raw stream line. Blank keep-alive lines are skipped.
func (sl *StreamLogger) LogLine(line string) {
	if line == "" {
		return
	}
	sl.Logf("%s\n", line)
}

// LogOutcome records how the stream ended
func (sl *StreamLogger) LogOutcome(err error) {
	if err != nil {
		sl.Logf("Outcome: %v\n", err)
		return
	}
	sl.Logf("Outcome: complete\n")
}

// Close closes the log file
func (sl *StreamLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.file == nil {
		return nil
	}
	sl.logLocked("=== Generation Stream Closed ===\n")
	sl.logLocked("Completed: %s\n", time.Now().Format(time.RFC3339))
	err := sl.file.Close()
	sl.file = nil
	return err
}
