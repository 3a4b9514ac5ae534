package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksatagent"
)

const testArtifactJSON = `{"card":{"subject":"플라톤의 이데아론"},"passage":{"passage":"(가) 철학은 ...\n(나) 과학은 ..."},"questions":[{"question_number":1,"question":"적절하지 않은 것은?","choices_1":"a","choices_2":"b","choices_3":"c","choices_4":"d","choices_5":"e","answer":"②","explanation_1":"e1","explanation_2":"e2","explanation_3":"e3","explanation_4":"e4","explanation_5":"e5"}]}`

// fakeBackend replays a fixed event stream and serves one saved output
type fakeBackend struct {
	mu      sync.Mutex
	lines   []string
	files   []ksatagent.OutputFile
	listErr error
	calls   []ksatagent.GenerationRequest

	// block, when set, holds every stream open until it is closed
	block chan struct{}
}

func (f *fakeBackend) GenerateStream(ctx context.Context, req ksatagent.GenerationRequest) (*ksatagent.EventStream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	body := strings.Join(f.lines, "\n\n") + "\n"
	return ksatagent.NewEventStream(io.NopCloser(strings.NewReader(body))), nil
}

func (f *fakeBackend) ListOutputs(ctx context.Context) ([]ksatagent.OutputFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeBackend) GetOutput(ctx context.Context, filename string) (*ksatagent.Artifact, error) {
	if filename != "saved.json" {
		return nil, &ksatagent.HTTPError{StatusCode: http.StatusNotFound}
	}
	var a ksatagent.Artifact
	if err := json.Unmarshal([]byte(testArtifactJSON), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func newTestServer(t *testing.T, backend ksatagent.Backend) *Server {
	t.Helper()
	cache, err := ksatagent.OpenCache(filepath.Join(t.TempDir(), "outputs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	require.NoError(t, cache.CreateTables())

	cfg := &ksatagent.Config{
		StreamTimeout: time.Minute,
		SessionSecret: "test-secret",
	}
	return newServer(cfg, backend, cache)
}

// do sends a request through the server's routes, carrying cookies over
func do(t *testing.T, h http.Handler, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func progressOf(t *testing.T, h http.Handler, cookies []*http.Cookie) progressSnapshot {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/progress", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap progressSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	return snap
}

func TestGenerateFlow(t *testing.T) {
	backend := &fakeBackend{lines: []string{
		`data: {"type":"progress","step":"card","status":"start"}`,
		`data: {"type":"progress","step":"passage","status":"start"}`,
		`data: {"type":"progress","step":"question","question_number":1,"status":"start"}`,
		`data: {"type":"complete","result":` + testArtifactJSON + `}`,
	}}
	s := newTestServer(t, backend)
	h := s.routes()

	form := validForm()
	form.Set("num_questions", "1")
	rec := do(t, h, http.MethodPost, "/generate", form, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	require.Eventually(t, func() bool {
		return !progressOf(t, h, cookies).Generating
	}, 5*time.Second, 10*time.Millisecond)

	snap := progressOf(t, h, cookies)
	assert.True(t, snap.HasResult)
	assert.Empty(t, snap.Error)
	assert.Equal(t, ksatagent.Progress{Completed: 3, Total: 3}, snap.Progress)

	require.Len(t, backend.calls, 1)
	assert.Equal(t, "서양철학", backend.calls[0].Subfield)

	page := do(t, h, http.MethodGet, "/", nil, cookies)
	require.Equal(t, http.StatusOK, page.Code)
	html := page.Body.String()
	assert.Contains(t, html, "플라톤의 이데아론")
	assert.Contains(t, html, `<p class="section-label">(가)</p>`)
	assert.Contains(t, html, "<u>않은</u>")
	assert.Contains(t, html, "정답. ②")

	rows, err := s.cache.List(0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ksatagent.SourceGenerated, rows[0].Source)
}

func TestGenerateFailureIsReported(t *testing.T) {
	backend := &fakeBackend{lines: []string{
		`data: {"type":"progress","step":"card","status":"start"}`,
		`data: {"type":"progress","step":"card","status":"complete"}`,
		`data: {"type":"progress","step":"passage","status":"start"}`,
		`data: {"type":"error","message":"quota exceeded"}`,
	}}
	h := newTestServer(t, backend).routes()

	rec := do(t, h, http.MethodPost, "/generate", validForm(), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()

	require.Eventually(t, func() bool {
		return !progressOf(t, h, cookies).Generating
	}, 5*time.Second, 10*time.Millisecond)

	snap := progressOf(t, h, cookies)
	assert.False(t, snap.HasResult)
	assert.Equal(t, "생성 중 오류: quota exceeded", snap.Error)
	require.Len(t, snap.Tasks, 4)
	assert.Equal(t, ksatagent.StatusComplete, snap.Tasks[0].Status)
	assert.Equal(t, ksatagent.StatusInProgress, snap.Tasks[1].Status)
	assert.Equal(t, ksatagent.StatusPending, snap.Tasks[2].Status)

	page := do(t, h, http.MethodGet, "/", nil, cookies)
	assert.Contains(t, page.Body.String(), "생성 중 오류: quota exceeded")
}

func TestGenerateRefusesSecondJob(t *testing.T) {
	backend := &fakeBackend{
		lines: []string{`data: {"type":"complete","result":` + testArtifactJSON + `}`},
		block: make(chan struct{}),
	}
	h := newTestServer(t, backend).routes()

	home := do(t, h, http.MethodGet, "/", nil, nil)
	cookies := home.Result().Cookies()

	var wg sync.WaitGroup
	locations := make([]string, 4)
	for i := range locations {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := do(t, h, http.MethodPost, "/generate", validForm(), cookies)
			locations[i] = rec.Header().Get("Location")
		}(i)
	}
	wg.Wait()

	started := 0
	for _, loc := range locations {
		if loc == "/" {
			started++
		} else {
			assert.Contains(t, loc, "msg=")
		}
	}
	assert.Equal(t, 1, started)

	close(backend.block)
	require.Eventually(t, func() bool {
		return progressOf(t, h, cookies).HasResult
	}, 5*time.Second, 10*time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.calls, 1)
}

func TestGenerateRejectsInvalidForm(t *testing.T) {
	h := newTestServer(t, &fakeBackend{}).routes()
	form := validForm()
	form.Set("num_questions", "9")

	rec := do(t, h, http.MethodPost, "/generate", form, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/generate", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="q_type_6"`)
}

func TestLoadOutput(t *testing.T) {
	s := newTestServer(t, &fakeBackend{files: []ksatagent.OutputFile{{Filename: "saved.json", Subject: "플라톤의 이데아론", QuestionCount: 1}}})
	h := s.routes()

	home := do(t, h, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), `value="saved.json"`)
	cookies := home.Result().Cookies()

	rec := do(t, h, http.MethodPost, "/outputs/load", url.Values{"filename": {"saved.json"}}, cookies)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	snap := progressOf(t, h, cookies)
	assert.True(t, snap.HasResult)

	cached, err := s.cache.Get("saved.json")
	require.NoError(t, err)
	assert.Equal(t, "플라톤의 이데아론", cached.Card.Title())

	rec = do(t, h, http.MethodPost, "/outputs/load", url.Values{"filename": {"missing.json"}}, cookies)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "msg=")
}

func TestHomeFallsBackToCache(t *testing.T) {
	s := newTestServer(t, &fakeBackend{listErr: &ksatagent.TransportError{Op: "GET /api/outputs", Err: errors.New("refused")}})
	require.NoError(t, s.cache.Put("cached.json", ksatagent.SourceSaved, &ksatagent.Artifact{Card: ksatagent.Card{Subject: "캐시된 주제"}}))

	rec := do(t, s.routes(), http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "백엔드 서버와 연결할 수 없습니다")
	assert.Contains(t, body, "캐시된 주제")
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	h := s.routes()

	home := do(t, h, http.MethodGet, "/", nil, nil)
	cookies := home.Result().Cookies()
	require.Equal(t, 1, s.sessions.Len())

	rec := do(t, h, http.MethodPost, "/session/close", nil, cookies)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, s.sessions.Len())
}

func TestProgressWebSocketClosesWhenIdle(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &fakeBackend{}).routes())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/progress/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var snap progressSnapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.False(t, snap.Generating)
	assert.Equal(t, 0, snap.Progress.Total)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
