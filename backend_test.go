package ksatagent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPBackend(t *testing.T) {
	_, err := NewHTTPBackend(BackendOptions{BaseURL: "  "})
	assert.Error(t, err)

	b, err := NewHTTPBackend(BackendOptions{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", b.BaseURL())
	assert.Equal(t, DefaultListTimeout, b.listTimeout)
	assert.Equal(t, DefaultLoadTimeout, b.loadTimeout)

	b, err = NewHTTPBackendFromConfig(&Config{BackendURL: "http://backend:9000", ListTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", b.BaseURL())
	assert.Equal(t, time.Second, b.listTimeout)
}

func TestListOutputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/outputs", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files":[{"filename":"a.json","생성일자":"2025-01-02","대분야":"인문예술","주제":"이데아론","문항 수":3},{"filename":"b.json"}]}`))
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(BackendOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	files, err := b.ListOutputs(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "이데아론", files[0].Subject)
	assert.Equal(t, 3, files[0].QuestionCount)
	assert.Equal(t, "b.json", files[1].Filename)
}

func TestGetOutputEscapesFilename(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"card":{"subject":"이데아론"},"passage":{"passage":"본문"},"questions":[{"question_number":1,"answer":"②"}]}`))
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(BackendOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	a, err := b.GetOutput(context.Background(), "결과 1.json")
	require.NoError(t, err)
	assert.Equal(t, "/api/outputs/%EA%B2%B0%EA%B3%BC%201.json", gotPath)
	assert.Equal(t, "이데아론", a.Card.Title())
	assert.Equal(t, "본문", a.Passage.Text)
	require.Len(t, a.Questions, 1)
	assert.Equal(t, 2, a.Questions[0].Answer())

	_, err = b.GetOutput(context.Background(), "")
	assert.Error(t, err)
}

func TestGetOutputHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	b, err := NewHTTPBackend(BackendOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = b.GetOutput(context.Background(), "missing.json")
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Contains(t, herr.Error(), "not found")
}

func TestListOutputsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := NewHTTPBackend(BackendOptions{BaseURL: url})
	require.NoError(t, err)

	_, err = b.ListOutputs(context.Background())
	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
}

func TestListOutputsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b, err := NewHTTPBackend(BackendOptions{BaseURL: srv.URL, ListTimeout: 100 * time.Millisecond})
	require.NoError(t, err)

	_, err = b.ListOutputs(context.Background())
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "생성 중 오류: quota exceeded", UserMessage(&ApplicationFailure{Message: "quota exceeded"}))
	assert.Contains(t, UserMessage(&TransportError{Op: "open stream", Err: errors.New("refused")}), "백엔드 서버와 연결할 수 없습니다")
	assert.Equal(t, "오류: boom", UserMessage(errors.New("boom")))
}
