package ksatagent

import (
	"context"
	"errors"
	"io"
	"time"
)

// StepLabel returns the task label a progress event refers to
func StepLabel(ev ProgressEvent) string {
	switch ev.Step {
	case StepCard:
		return LabelStructureDesign
	case StepPassage:
		return LabelPassageGeneration
	case StepQuestion:
		return QuestionLabel(ev.QuestionNumber)
	default:
		return ""
	}
}

// ApplyEvent applies the task transition of ev to tl. A start completes every
// task still in progress before marking its own task; a completion touches
// only its own task. A result completes everything. Failures leave tl as is.
func ApplyEvent(tl *TaskList, ev GenerationEvent) {
	switch e := ev.(type) {
	case ProgressEvent:
		label := StepLabel(e)
		switch e.Status {
		case EventStart:
			tl.Start(label)
		case EventComplete:
			tl.SetStatus(label, StatusComplete)
		}
	case ResultEvent:
		tl.CompleteAll()
	}
}

// UpdateFunc observes the task list after every applied event
type UpdateFunc func(p Progress, tasks []Task)

// StreamConsumer runs generation jobs against a Backend and keeps a session's
// task list and result store in step with the event stream.
type StreamConsumer struct {
	backend Backend
	timeout time.Duration
	logDir  string

	// Cache, when set, keeps a copy of every generated artifact
	Cache *OutputCache

	// OnUpdate, when set, is called on the event path after each event
	OnUpdate UpdateFunc
}

// NewStreamConsumer creates a consumer. A non-positive timeout uses DefaultStreamTimeout.
func NewStreamConsumer(backend Backend, timeout time.Duration) *StreamConsumer {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	return &StreamConsumer{
		backend: backend,
		timeout: timeout,
	}
}

// SetLogDir enables per-job stream transcripts under dir
func (sc *StreamConsumer) SetLogDir(dir string) {
	sc.logDir = dir
}

// Run starts a job on session and consumes its event stream until a terminal
// event, a transport failure or the stream timeout. On success the artifact is
// delivered to the session's result store, unless the job was superseded.
// Failures return *ApplicationFailure or *TransportError and leave the task
// list as last observed.
func (sc *StreamConsumer) Run(ctx context.Context, session *Session, req GenerationRequest) (*Artifact, error) {
	requestID, tasks, err := session.Begin(len(req.Questions))
	if err != nil {
		return nil, err
	}
	return sc.runJob(ctx, session, requestID, tasks, req)
}

// JobResult is the outcome of a job started with Start
type JobResult struct {
	Artifact *Artifact
	Err      error
}

// Start begins a job on session synchronously, so the session reports it as
// generating on return, and consumes the stream in the background. The
// channel receives exactly one result and is then closed. Start returns
// ErrJobRunning without starting anything while the session is busy.
func (sc *StreamConsumer) Start(ctx context.Context, session *Session, req GenerationRequest) (<-chan JobResult, error) {
	requestID, tasks, err := session.Begin(len(req.Questions))
	if err != nil {
		return nil, err
	}
	out := make(chan JobResult, 1)
	go func() {
		defer close(out)
		a, err := sc.runJob(ctx, session, requestID, tasks, req)
		out <- JobResult{Artifact: a, Err: err}
	}()
	return out, nil
}

func (sc *StreamConsumer) runJob(ctx context.Context, session *Session, requestID string, tasks *TaskList, req GenerationRequest) (*Artifact, error) {
	sc.notify(tasks)

	Logger().Infow("starting generation",
		"session", session.ID,
		"request", requestID,
		"field", req.Field,
		"subfield", req.Subfield,
		"questions", len(req.Questions))

	var transcript *StreamLogger
	if sc.logDir != "" {
		sl, err := NewStreamLogger(sc.logDir, requestID, req)
		if err != nil {
			// Continue without a transcript rather than failing
			Logger().Warnw("failed to create stream log", "request", requestID, "error", err)
		} else {
			transcript = sl
			defer transcript.Close()
		}
	}

	artifact, err := sc.consume(ctx, requestID, tasks, req, transcript)
	if transcript != nil {
		transcript.LogOutcome(err)
	}
	if err != nil {
		session.Fail(requestID, err)
		Logger().Warnw("generation ended with error", "request", requestID, "error", err)
		return nil, err
	}

	if sc.Cache != nil {
		if err := sc.Cache.Put(GeneratedFilename(requestID), SourceGenerated, artifact); err != nil {
			Logger().Warnw("failed to cache generated artifact", "request", requestID, "error", err)
		}
	}
	if !session.Deliver(requestID, artifact) {
		VerboseLog("request %s finished after it was superseded", requestID)
	}
	Logger().Infow("generation complete",
		"request", requestID,
		"subject", artifact.Card.Title(),
		"questions", len(artifact.Questions))
	return artifact, nil
}

func (sc *StreamConsumer) consume(ctx context.Context, requestID string, tasks *TaskList, req GenerationRequest, transcript *StreamLogger) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, sc.timeout)
	defer cancel()

	stream, err := sc.backend.GenerateStream(ctx, req)
	if err != nil {
		return nil, asTransportError(ctx, "open stream", err)
	}
	defer stream.Close()

	if transcript != nil {
		stream.OnLine = transcript.LogLine
	}

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &TransportError{Op: "read stream", Err: io.ErrUnexpectedEOF}
			}
			return nil, asTransportError(ctx, "read stream", err)
		}

		ApplyEvent(tasks, ev)
		sc.notify(tasks)

		switch e := ev.(type) {
		case ProgressEvent:
			VerboseLog("request %s: %s %s", requestID, StepLabel(e), e.Status)
		case ResultEvent:
			return e.Artifact, nil
		case FailureEvent:
			return nil, &ApplicationFailure{Message: e.Message}
		}
	}
}

func (sc *StreamConsumer) notify(tasks *TaskList) {
	if sc.OnUpdate == nil {
		return
	}
	sc.OnUpdate(tasks.Aggregate(), tasks.Snapshot())
}

// asTransportError classifies err, reporting an expired or cancelled context
// as a transport failure. Application failures pass through unchanged.
func asTransportError(ctx context.Context, op string, err error) error {
	var failure *ApplicationFailure
	if errors.As(err, &failure) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &TransportError{Op: op, Err: ctxErr}
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
