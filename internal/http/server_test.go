package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadboard/internal/core"
	"leadboard/internal/services"
	"leadboard/internal/stats"
)

const boardDoc = `{
 "Alena": {"projects": [
   {"id": "p1", "name": "Rostov", "leads": {"2026-01-05": 5, "2026-01-06": 0, "2026-01-07": -1},
    "weeks": {"2026-01-05": {"budget": 5000, "spend": 1000, "goal": 10, "targetCpa": 500,
      "bundles": [{"bundle": "T1", "unscrew": 300}]}},
    "defaultGoal": 100, "defaultBudget": 5000, "defaultTargetCpa": 500}
 ]},
 "Denis": {"projects": [
   {"id": "p2", "name": "Perm", "leads": {"2026-01-05": 4}, "weeks": {},
    "defaultGoal": 100, "defaultBudget": 5000, "defaultTargetCpa": 500}
 ]}
}`

// fakeBoard applies mutations in place of the reconciler.
type fakeBoard struct {
	mu     sync.Mutex
	doc    core.Document
	rev    uint64
	loaded bool
}

func (b *fakeBoard) Document() (core.Document, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return core.Document{}, 0, services.ErrNotLoaded
	}
	return b.doc, b.rev, nil
}

func (b *fakeBoard) ApplyLocal(m core.Mutation) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := m.Apply(b.doc)
	if err != nil {
		return 0, err
	}
	b.doc = next
	b.rev++
	return b.rev, nil
}

func (b *fakeBoard) Status() services.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return services.Status{Loaded: b.loaded, Revision: b.rev, TotalLeads: b.doc.TotalLeads()}
}

func newTestServer(t *testing.T, loaded bool) (*Server, *fakeBoard) {
	t.Helper()
	doc, err := core.DecodeDocument([]byte(boardDoc))
	require.NoError(t, err)
	board := &fakeBoard{doc: doc, rev: 1, loaded: loaded}

	start, err := core.ParseDay("2025-12-29")
	require.NoError(t, err)
	srv := NewServer(":0", board, Options{
		Weeks:     core.WeekWindows(start, 10),
		CacheSize: 16,
		Now:       func() time.Time { return time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(srv.limiter.Stop)
	return srv, board
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNotLoadedAnswers503(t *testing.T) {
	srv, _ := newTestServer(t, false)

	for _, target := range []string{"/api/stats", "/api/weeks", "/api/document", "/readyz"} {
		rec := do(t, srv, http.MethodGet, target, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	rec := do(t, srv, http.MethodPut, "/api/members/Denis/projects/p2/leads/2026-01-06", `{"value":"3"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[map[string]any](t, rec)
	require.Equal(t, false, status["loaded"])
}

func TestWeeklyStats(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := do(t, srv, http.MethodGet, "/api/stats?week=2026-01-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Document-Revision"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	report := decodeBody[stats.WeeklyReport](t, rec)
	require.Equal(t, 9, report.TotalLeads)
	require.Len(t, report.Members, 2)

	// The current week is the default.
	rec = do(t, srv, http.MethodGet, "/api/stats", "")
	require.Equal(t, "2026-01-05", decodeBody[stats.WeeklyReport](t, rec).Week)
}

func TestViewsAreCachedPerRevision(t *testing.T) {
	srv, _ := newTestServer(t, true)

	do(t, srv, http.MethodGet, "/api/stats?week=2026-01-05", "")
	do(t, srv, http.MethodGet, "/api/stats?week=2026-01-05", "")
	hits, misses := srv.memo.Stats()
	require.EqualValues(t, 1, hits)
	require.EqualValues(t, 1, misses)

	rec := do(t, srv, http.MethodPut, "/api/members/Denis/projects/p2/leads/2026-01-06", `{"value":"3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, decodeBody[RevisionBody](t, rec).Revision)

	rec = do(t, srv, http.MethodGet, "/api/stats?week=2026-01-05", "")
	require.Equal(t, 12, decodeBody[stats.WeeklyReport](t, rec).TotalLeads)
}

func TestBadParameters(t *testing.T) {
	srv, _ := newTestServer(t, true)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"week not a monday", "/api/stats?week=2026-01-06", http.StatusBadRequest},
		{"week not a date", "/api/bundles?week=soon", http.StatusBadRequest},
		{"month not a number", "/api/monthly?year=2026&month=jan", http.StatusBadRequest},
		{"month out of range", "/api/monthly/dynamics?year=2026&month=13", http.StatusBadRequest},
		{"unknown sort", "/api/monthly?sort=colour", http.StatusBadRequest},
		{"unknown member", "/api/members/Nobody/week?week=2026-01-05", http.StatusNotFound},
		{"unknown route", "/api/nothing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			require.NotEmpty(t, decodeBody[ErrorBody](t, rec).Error)
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/stats", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMonthlyViews(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := do(t, srv, http.MethodGet, "/api/monthly?year=2026&month=1&sort=projectName&dir=asc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[MonthlyBody](t, rec)
	require.Len(t, body.Rows, 2)
	require.Equal(t, "Perm", body.Rows[0].ProjectName)
	require.Equal(t, stats.SortSpec{Key: stats.SortProjectName, Direction: stats.Asc}, body.Sort)

	rec = do(t, srv, http.MethodGet, "/api/bundles/monthly?year=2026&month=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	table := decodeBody[stats.BundleTable](t, rec)
	require.Len(t, table.Rows, 1)
	require.Equal(t, "T1", table.Rows[0].Bundle)

	rec = do(t, srv, http.MethodGet, "/api/dynamics?week=2026-01-05", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2025-12-29", decodeBody[stats.WeeklyDynamicsTable](t, rec).PreviousWeek)
}

func TestSetLead(t *testing.T) {
	srv, board := newTestServer(t, true)

	rec := do(t, srv, http.MethodPut, "/api/members/Denis/projects/p2/leads/2026-01-06", "value=%D0%BD")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc, _, _ := board.Document()
	require.True(t, doc.Members[1].Projects[0].Leads.At("2026-01-06").IsNoData())

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"invalid number", "/api/members/Denis/projects/p2/leads/2026-01-06", `{"value":"many"}`, http.StatusBadRequest},
		{"negative", "/api/members/Denis/projects/p2/leads/2026-01-06", `{"value":-2}`, http.StatusBadRequest},
		{"bad day", "/api/members/Denis/projects/p2/leads/yesterday", `{"value":"1"}`, http.StatusBadRequest},
		{"unknown project", "/api/members/Denis/projects/zz/leads/2026-01-06", `{"value":"1"}`, http.StatusNotFound},
		{"unknown member", "/api/members/Nobody/projects/p2/leads/2026-01-06", `{"value":"1"}`, http.StatusNotFound},
		{"broken json", "/api/members/Denis/projects/p2/leads/2026-01-06", `{"value":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, tt.target, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv, board := newTestServer(t, true)

	rec := do(t, srv, http.MethodPost, "/api/members/Denis/projects", `{"name":"Omsk"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[AddProjectBody](t, rec)
	require.Equal(t, "Omsk", added.Project.Name)
	require.NotEmpty(t, added.Project.ID)

	rec = do(t, srv, http.MethodPost, "/api/members/Denis/projects", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, core.DefaultProjectName, decodeBody[AddProjectBody](t, rec).Project.Name)

	target := "/api/members/Denis/projects/" + added.Project.ID
	rec = do(t, srv, http.MethodPut, target+"/name", "name=Omsk+2")
	require.Equal(t, http.StatusOK, rec.Code)
	p, err := func() (core.Project, error) {
		doc, _, _ := board.Document()
		return doc.Project("Denis", added.Project.ID)
	}()
	require.NoError(t, err)
	require.Equal(t, "Omsk 2", p.Name)

	rec = do(t, srv, http.MethodDelete, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodDelete, target, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/members/Nobody/projects", `{"name":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeekEdits(t *testing.T) {
	srv, board := newTestServer(t, true)
	base := "/api/members/Denis/projects/p2/weeks/2026-01-05"

	rec := do(t, srv, http.MethodPut, base+"/spend", `{"value":"1200,5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPut, base+"/bundles/1", `{"bundle":" broad ","unscrew":"250"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc, _, _ := board.Document()
	ws, ok := doc.Members[1].Projects[0].Week("2026-01-05")
	require.True(t, ok)
	require.Equal(t, 1200.5, ws.Spend)
	require.Equal(t, float64(5000), ws.Budget)
	require.Len(t, ws.Bundles, 2)
	require.Equal(t, core.BundleEntry{Bundle: "broad", Unscrew: 250}, ws.Bundles[1])

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown field", base + "/colour", `{"value":"1"}`, http.StatusBadRequest},
		{"negative amount", base + "/budget", `{"value":"-5"}`, http.StatusBadRequest},
		{"not a monday", "/api/members/Denis/projects/p2/weeks/2026-01-06/goal", `{"value":"5"}`, http.StatusBadRequest},
		{"slot out of range", base + "/bundles/4", `{"bundle":"x","unscrew":"1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPut, tt.target, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSetMonthlyGoal(t *testing.T) {
	srv, board := newTestServer(t, true)

	q := url.Values{"year": {"2026"}, "month": {"1"}}
	rec := do(t, srv, http.MethodPut, "/api/members/Alena/projects/p1/monthly-goal?"+q.Encode(), `{"value":"400"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc, _, _ := board.Document()
	p := doc.Members[0].Projects[0]
	for _, monday := range core.MondaysInMonth(2026, time.January) {
		ws, ok := p.Week(monday)
		require.True(t, ok, monday)
		require.Equal(t, float64(100), ws.Goal, monday)
	}
	require.Equal(t, float64(100), p.DefaultGoal)

	rec = do(t, srv, http.MethodPut, "/api/members/Alena/projects/p1/monthly-goal?year=2026&month=0", `{"value":"400"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentAndWeeks(t *testing.T) {
	srv, _ := newTestServer(t, true)

	rec := do(t, srv, http.MethodGet, "/api/weeks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	weeks := decodeBody[WeeksBody](t, rec)
	require.Len(t, weeks.Weeks, 10)
	require.Equal(t, "2026-01-05", weeks.Current)

	rec = do(t, srv, http.MethodGet, "/api/document", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Member order survives the round trip.
	require.Less(t, strings.Index(rec.Body.String(), "Alena"), strings.Index(rec.Body.String(), "Denis"))
}
