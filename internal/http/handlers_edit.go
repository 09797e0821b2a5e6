package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"leadboard/internal/core"
	"leadboard/internal/log"
)

// apply runs m against the board and answers with the new revision.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, op string, ref ProjectRef, m core.Mutation) {
	rev, err := s.board.ApplyLocal(m)
	if err != nil {
		writeError(w, r, err, op)
		return
	}
	log.LogMutation(r.Context(), op, ref.Owner, ref.ProjectID, rev)
	NewJSONResponse(RevisionBody{Revision: rev}).Write(w)
}

// AddProjectBody answers POST /api/members/{owner}/projects.
type AddProjectBody struct {
	Revision uint64       `json:"revision"`
	Project  core.Project `json:"project"`
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpAddProject)
		return
	}
	p := s.team.NewProject(body.Get("name"))
	rev, err := s.board.ApplyLocal(core.AddProject{Owner: owner, Project: p})
	if err != nil {
		writeError(w, r, err, log.OpAddProject)
		return
	}
	log.LogMutation(r.Context(), log.OpAddProject, owner, p.ID, rev)
	NewJSONResponse(AddProjectBody{Revision: rev, Project: p}).Status(http.StatusCreated).Write(w)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	s.apply(w, r, log.OpDeleteProject, ref, core.DeleteProject{Owner: ref.Owner, ProjectID: ref.ProjectID})
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpRename)
		return
	}
	s.apply(w, r, log.OpRename, ref, core.RenameProject{Owner: ref.Owner, ProjectID: ref.ProjectID, Name: body.Get("name")})
}

// handleSetLead accepts the cell text: a number, empty for zero, or the
// not-tracked marker.
func (s *Server) handleSetLead(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpSetLead)
		return
	}
	value, err := core.ParseLeadInput(body.Get("value"))
	if err != nil {
		writeError(w, r, err, log.OpSetLead)
		return
	}
	s.apply(w, r, log.OpSetLead, ref, core.SetLead{
		Owner:     ref.Owner,
		ProjectID: ref.ProjectID,
		Day:       mux.Vars(r)["day"],
		Value:     value,
	})
}

func (s *Server) handleSetWeekStat(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	vars := mux.Vars(r)
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpSetWeekStat)
		return
	}
	value, err := core.ParseAmount(body.Get("value"))
	if err != nil {
		writeError(w, r, err, log.OpSetWeekStat)
		return
	}
	s.apply(w, r, log.OpSetWeekStat, ref, core.SetWeekStat{
		Owner:     ref.Owner,
		ProjectID: ref.ProjectID,
		Week:      vars["week"],
		Field:     core.StatField(vars["field"]),
		Value:     value,
	})
}

func (s *Server) handleSetBundle(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	slot, err := pathInt(r, "slot")
	if err != nil {
		writeError(w, r, err, log.OpSetBundle)
		return
	}
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpSetBundle)
		return
	}
	unscrew, err := core.ParseAmount(body.Get("unscrew"))
	if err != nil {
		writeError(w, r, err, log.OpSetBundle)
		return
	}
	s.apply(w, r, log.OpSetBundle, ref, core.SetBundle{
		Owner:     ref.Owner,
		ProjectID: ref.ProjectID,
		Week:      mux.Vars(r)["week"],
		Slot:      slot,
		Entry:     core.BundleEntry{Bundle: body.Get("bundle"), Unscrew: unscrew},
	})
}

func (s *Server) handleSetMonthlyGoal(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err, log.OpMonthlyGoal)
		return
	}
	if mp.Month < time.January || mp.Month > time.December {
		writeError(w, r, badRequest("month %d", mp.Month), log.OpMonthlyGoal)
		return
	}
	body, err := parseBody(w, r)
	if err != nil {
		writeError(w, r, err, log.OpMonthlyGoal)
		return
	}
	goal, err := core.ParseAmount(body.Get("value"))
	if err != nil {
		writeError(w, r, err, log.OpMonthlyGoal)
		return
	}
	s.apply(w, r, log.OpMonthlyGoal, ref, core.SetMonthlyGoal{
		Owner:     ref.Owner,
		ProjectID: ref.ProjectID,
		Year:      mp.Year,
		Month:     mp.Month,
		Goal:      goal,
	})
}
