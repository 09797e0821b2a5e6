package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"leadboard/internal/cache"
	"leadboard/internal/core"
	"leadboard/internal/stats"
)

// view serves an aggregation of the current document. Results are memoized
// per revision, view name and parameters.
func (s *Server) view(w http.ResponseWriter, r *http.Request, name string, params []string, build func(core.Document) (any, error)) {
	doc, rev, err := s.board.Document()
	if err != nil {
		writeError(w, r, err, name)
		return
	}
	v, err := s.memo.Do(cache.Key(rev, name, params...), func() (any, error) {
		return build(doc)
	})
	if err != nil {
		writeError(w, r, err, name)
		return
	}
	NewJSONResponse(v).Header("X-Document-Revision", strconv.FormatUint(rev, 10)).Write(w)
}

func (s *Server) currentWeek() string {
	return s.weeks.Current(s.now()).ID
}

// WeeksBody is the payload of GET /api/weeks.
type WeeksBody struct {
	Weeks   core.WeekSequence `json:"weeks"`
	Current string            `json:"current"`
}

func (s *Server) handleWeeks(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(WeeksBody{Weeks: s.weeks, Current: s.currentWeek()}).Write(w)
}

// DocumentBody is the payload of GET /api/document.
type DocumentBody struct {
	Revision uint64        `json:"revision"`
	Document core.Document `json:"document"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, rev, err := s.board.Document()
	if err != nil {
		writeError(w, r, err, "document")
		return
	}
	NewJSONResponse(DocumentBody{Revision: rev, Document: doc}).Write(w)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	week, err := ParseWeekParam(r.URL.Query(), s.currentWeek())
	if err != nil {
		writeError(w, r, err, "weekly")
		return
	}
	s.view(w, r, "weekly", []string{week}, func(d core.Document) (any, error) {
		return stats.Weekly(d, week)
	})
}

func (s *Server) handleMemberWeek(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	week, err := ParseWeekParam(r.URL.Query(), s.currentWeek())
	if err != nil {
		writeError(w, r, err, "member_week")
		return
	}
	s.view(w, r, "member_week", []string{owner, week}, func(d core.Document) (any, error) {
		return stats.MemberWeekView(d, owner, week)
	})
}

func (s *Server) handleWeeklyDynamics(w http.ResponseWriter, r *http.Request) {
	week, err := ParseWeekParam(r.URL.Query(), s.currentWeek())
	if err != nil {
		writeError(w, r, err, "weekly_dynamics")
		return
	}
	s.view(w, r, "weekly_dynamics", []string{week}, func(d core.Document) (any, error) {
		return stats.WeeklyDynamics(d, s.weeks, week)
	})
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mp, err := ParseMonthParams(q, s.now())
	if err != nil {
		writeError(w, r, err, "monthly")
		return
	}
	spec, err := stats.ParseSortSpec(q.Get("sort"), q.Get("dir"))
	if err != nil {
		writeError(w, r, err, "monthly")
		return
	}
	params := []string{strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month)), string(spec.Key), string(spec.Direction)}
	s.view(w, r, "monthly", params, func(d core.Document) (any, error) {
		rows, err := stats.MonthlyProjects(d, mp.Year, mp.Month, spec)
		if err != nil {
			return nil, err
		}
		return MonthlyBody{Year: mp.Year, Month: int(mp.Month), Sort: spec, Rows: rows}, nil
	})
}

// MonthlyBody is the payload of GET /api/monthly.
type MonthlyBody struct {
	Year  int                  `json:"year"`
	Month int                  `json:"month"`
	Sort  stats.SortSpec       `json:"sort"`
	Rows  []stats.ProjectMonth `json:"rows"`
}

func (s *Server) handleMonthlyDynamics(w http.ResponseWriter, r *http.Request) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err, "monthly_dynamics")
		return
	}
	s.view(w, r, "monthly_dynamics", []string{strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month))}, func(d core.Document) (any, error) {
		return stats.MonthlyDynamics(d, mp.Year, mp.Month)
	})
}

func (s *Server) handleWeeklyBundles(w http.ResponseWriter, r *http.Request) {
	week, err := ParseWeekParam(r.URL.Query(), s.currentWeek())
	if err != nil {
		writeError(w, r, err, "weekly_bundles")
		return
	}
	s.view(w, r, "weekly_bundles", []string{week}, func(d core.Document) (any, error) {
		return stats.WeeklyBundles(d, week)
	})
}

func (s *Server) handleMonthlyBundles(w http.ResponseWriter, r *http.Request) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err, "monthly_bundles")
		return
	}
	s.view(w, r, "monthly_bundles", []string{strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month))}, func(d core.Document) (any, error) {
		return stats.MonthlyBundles(d, mp.Year, mp.Month)
	})
}
