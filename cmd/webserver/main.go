package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"ksatagent"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
)

const (
	cookieName   = "ksat-session"
	sessionIDKey = "sid"
)

type Server struct {
	cfg       *ksatagent.Config
	backend   ksatagent.Backend
	consumer  *ksatagent.StreamConsumer
	cache     *ksatagent.OutputCache
	store     *sessions.CookieStore
	sessions  *ksatagent.SessionManager
	templates map[string]*template.Template
	upgrader  websocket.Upgrader
}

func main() {
	cfg := ksatagent.LoadConfig()
	ksatagent.SetVerbose(cfg.Verbose)
	log := ksatagent.Logger()

	backend, err := ksatagent.NewHTTPBackendFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create backend client: %v", err)
	}

	// Initialize cache
	cache, err := ksatagent.OpenCache(cfg.CacheDB)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer cache.Close()

	if err := cache.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	server := newServer(cfg, backend, cache)

	log.Infof("Starting server on port %s (backend %s)", cfg.Port, cfg.BackendURL)
	if err := http.ListenAndServe(":"+cfg.Port, server.routes()); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func newServer(cfg *ksatagent.Config, backend ksatagent.Backend, cache *ksatagent.OutputCache) *Server {
	consumer := ksatagent.NewStreamConsumer(backend, cfg.StreamTimeout)
	consumer.SetLogDir(cfg.LogDir)
	consumer.Cache = cache

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		cfg:       cfg,
		backend:   backend,
		consumer:  consumer,
		cache:     cache,
		store:     store,
		sessions:  ksatagent.NewSessionManager(),
		templates: loadTemplates(),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/outputs/load", s.handleLoadOutput)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/progress", s.handleProgress)
	mux.HandleFunc("/progress/ws", s.handleProgressWS)
	mux.HandleFunc("/session/close", s.handleCloseSession)
	return mux
}

func loadTemplates() map[string]*template.Template {
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"percent": func(p ksatagent.Progress) int {
			return int(p.Fraction() * 100)
		},
		"badge": ksatagent.StatusBadge,
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
	}

	templates := make(map[string]*template.Template)
	templateFiles := []struct {
		name string
		file string
	}{
		{"home", "templates/home.html"},
		{"generate", "templates/generate.html"},
	}
	for _, tmpl := range templateFiles {
		templates[tmpl.name] = template.Must(template.New(tmpl.name).Funcs(funcMap).ParseFiles("templates/base.html", tmpl.file))
	}
	return templates
}

// session returns the caller's session, creating one and setting the cookie when needed
func (s *Server) session(w http.ResponseWriter, r *http.Request) *ksatagent.Session {
	cookie, _ := s.store.Get(r, cookieName)
	id, _ := cookie.Values[sessionIDKey].(string)

	sess := s.sessions.GetOrCreate(id)
	if sess.ID != id {
		cookie.Values[sessionIDKey] = sess.ID
		if err := cookie.Save(r, w); err != nil {
			ksatagent.Logger().Warnw("session save error", "error", err)
		}
	}
	return sess
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]interface{}) {
	err := s.templates[name].ExecuteTemplate(w, "base.html", data)
	if err != nil {
		ksatagent.Logger().Errorw("template error", "template", name, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sess := s.session(w, r)

	data := map[string]interface{}{
		"Flash": r.URL.Query().Get("msg"),
	}

	files, err := s.backend.ListOutputs(r.Context())
	if err != nil {
		ksatagent.Logger().Warnw("failed to list outputs", "error", err)
		var httpErr *ksatagent.HTTPError
		if errors.As(err, &httpErr) {
			data["ListError"] = fmt.Sprintf("파일 목록 조회 실패: %d", httpErr.StatusCode)
		} else {
			data["ListError"] = "백엔드 서버와 연결할 수 없습니다. 서버가 실행 중인지 확인하세요."
		}
		if cached, cerr := s.cache.List(50); cerr == nil {
			data["Cached"] = cached
		}
	}
	data["Files"] = files

	generating, lastErr := sess.State()
	tasks := sess.Tasks()
	data["Generating"] = generating
	data["Progress"] = tasks.Aggregate()
	data["Tasks"] = tasks.Snapshot()
	if lastErr != nil {
		data["JobError"] = ksatagent.UserMessage(lastErr)
	}

	if a, ok := sess.Results.Get(); ok {
		view := ksatagent.FormatArtifact(a)
		data["View"] = view
	}

	s.render(w, "home", data)
}

func (s *Server) handleLoadOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	filename := strings.TrimSpace(r.FormValue("filename"))
	if filename == "" {
		http.Error(w, "Filename is required", http.StatusBadRequest)
		return
	}
	sess := s.session(w, r)

	a, err := s.backend.GetOutput(r.Context(), filename)
	if err != nil {
		ksatagent.Logger().Warnw("failed to load output", "filename", filename, "error", err)
		cached, cerr := s.cache.Get(filename)
		if cerr != nil {
			redirectWithMessage(w, r, "파일 불러오기 실패: "+err.Error())
			return
		}
		a = cached
	} else if err := s.cache.Put(filename, ksatagent.SourceSaved, a); err != nil {
		ksatagent.Logger().Warnw("failed to cache output", "filename", filename, "error", err)
	}

	sess.LoadSaved(a)
	redirectWithMessage(w, r, "불러오기 완료!")
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, "generate", map[string]interface{}{
			"Fields":        fieldOptions,
			"Subfields":     subfieldOptions,
			"PassageTypes":  []string{ksatagent.PassageSingle, ksatagent.PassageTwoPart},
			"Points":        pointsOptions,
			"QuestionTypes": questionTypes,
			"Styles":        questionStyles,
			"Answers":       []string{"①", "②", "③", "④", "⑤"},
			"MaxQuestions":  maxQuestions,
		})
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	req, err := parseGenerationForm(r.PostForm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.session(w, r)

	// Start generating in background; the request context ends with this handler
	results, err := s.consumer.Start(context.Background(), sess, req)
	if errors.Is(err, ksatagent.ErrJobRunning) {
		redirectWithMessage(w, r, "이미 생성이 진행 중입니다.")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	go func() {
		if res := <-results; res.Err != nil {
			ksatagent.Logger().Infow("generation failed", "session", sess.ID, "message", ksatagent.UserMessage(res.Err))
		}
	}()

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cookie, _ := s.store.Get(r, cookieName)
	if id, ok := cookie.Values[sessionIDKey].(string); ok {
		s.sessions.Remove(id)
	}
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		ksatagent.Logger().Warnw("session save error", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func redirectWithMessage(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?msg="+template.URLQueryEscaper(msg), http.StatusSeeOther)
}
