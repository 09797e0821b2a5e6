package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"leadboard/internal/cache"
	"leadboard/internal/core"
	"leadboard/internal/log"
	"leadboard/internal/middleware/ratelimit"
	"leadboard/internal/middleware/security"
	"leadboard/internal/middleware/trace"
	"leadboard/internal/services"
)

// Board is the document owner the API reads from and edits through.
// services.Reconciler implements it.
type Board interface {
	Document() (core.Document, uint64, error)
	ApplyLocal(m core.Mutation) (uint64, error)
	Status() services.Status
}

// Options configures the API server.
type Options struct {
	Weeks     core.WeekSequence
	Team      core.TeamTemplate
	CacheSize int
	RateLimit ratelimit.Config
	Logger    *log.Logger

	// Now is replaced in tests.
	Now func() time.Time
}

type Server struct {
	http.Server
	board    Board
	weeks    core.WeekSequence
	team     core.TeamTemplate
	memo     *cache.Memo
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *log.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires the routes and the middleware chain.
func NewServer(addr string, board Board, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger, _ = log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.Default().Handler()})
	}
	if len(opts.Team.Members) == 0 && opts.Team.Defaults == (core.TemplateDefaults{}) {
		opts.Team = core.DefaultTeam()
	}
	if len(opts.Weeks) == 0 {
		start, _ := core.ParseDay(core.DefaultCalendarStart)
		opts.Weeks = core.WeekWindows(start, core.DefaultCalendarWeeks)
	}

	s := &Server{
		board:    board,
		weeks:    opts.Weeks,
		team:     opts.Team,
		memo:     cache.NewMemo(opts.CacheSize),
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		logger:   opts.Logger,
		now:      opts.Now,
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = notAllowed
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Views
	api.HandleFunc("/weeks", s.loaded(s.handleWeeks)).Methods(http.MethodGet)
	api.HandleFunc("/document", s.loaded(s.handleDocument)).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.loaded(s.handleWeekly)).Methods(http.MethodGet)
	api.HandleFunc("/members/{owner}/week", s.loaded(s.handleMemberWeek)).Methods(http.MethodGet)
	api.HandleFunc("/dynamics", s.loaded(s.handleWeeklyDynamics)).Methods(http.MethodGet)
	api.HandleFunc("/monthly", s.loaded(s.handleMonthly)).Methods(http.MethodGet)
	api.HandleFunc("/monthly/dynamics", s.loaded(s.handleMonthlyDynamics)).Methods(http.MethodGet)
	api.HandleFunc("/bundles", s.loaded(s.handleWeeklyBundles)).Methods(http.MethodGet)
	api.HandleFunc("/bundles/monthly", s.loaded(s.handleMonthlyBundles)).Methods(http.MethodGet)

	// Edits
	project := "/members/{owner}/projects/{id}"
	api.HandleFunc("/members/{owner}/projects", s.edit(s.handleAddProject)).Methods(http.MethodPost)
	api.HandleFunc(project, s.edit(s.handleDeleteProject)).Methods(http.MethodDelete)
	api.HandleFunc(project+"/name", s.edit(s.handleRenameProject)).Methods(http.MethodPut)
	api.HandleFunc(project+"/leads/{day}", s.edit(s.handleSetLead)).Methods(http.MethodPut)
	api.HandleFunc(project+"/weeks/{week}/bundles/{slot:[0-9]+}", s.edit(s.handleSetBundle)).Methods(http.MethodPut)
	api.HandleFunc(project+"/weeks/{week}/{field}", s.edit(s.handleSetWeekStat)).Methods(http.MethodPut)
	api.HandleFunc(project+"/monthly-goal", s.edit(s.handleSetMonthlyGoal)).Methods(http.MethodPut)

	var handler http.Handler = r
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(s.logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// loaded answers 503 until the first document load has completed.
func (s *Server) loaded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.board.Status().Loaded {
			writeError(w, r, services.ErrNotLoaded, "")
			return
		}
		next(w, r)
	}
}

// edit is loaded plus the per-client rate limit.
func (s *Server) edit(next http.HandlerFunc) http.HandlerFunc {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})(next)
	return s.loaded(limited.ServeHTTP)
}

// Shutdown stops accepting requests and releases background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.limiter.Stop)
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.board.Status().Loaded {
		writeError(w, r, services.ErrNotLoaded, "")
		return
	}
	NewJSONResponse(map[string]string{"status": "ready"}).Write(w)
}

// StatusBody is the payload of GET /api/status.
type StatusBody struct {
	services.Status
	Cache     CacheStats                `json:"cache"`
	HTTP      trace.Metrics             `json:"http"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
}

type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	hits, misses := s.memo.Stats()
	NewJSONResponse(StatusBody{
		Status:    s.board.Status(),
		Cache:     CacheStats{Entries: s.memo.Len(), Hits: hits, Misses: misses},
		HTTP:      s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	}).Write(w)
}
