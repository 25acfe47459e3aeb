package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"quizdeck/internal/app"
	"quizdeck/internal/auth"
	"quizdeck/internal/domain"
	"quizdeck/internal/flags"
	"quizdeck/internal/leaderboard"
	"quizdeck/internal/selector"
)

// Generator is the opaque text-to-questions boundary.
type Generator interface {
	FromText(ctx context.Context, text string) ([]domain.Question, error)
}

// API exposes the leaderboard, flag, study, and generation endpoints.
// Callers identify themselves with the X-User header; the admin oracle
// decides who may moderate.
type API struct {
	service   *app.QuizService
	scores    *leaderboard.Service
	registry  *flags.Registry
	checker   auth.Checker
	generator Generator
}

func NewAPI(service *app.QuizService, scores *leaderboard.Service, registry *flags.Registry, checker auth.Checker, generator Generator) *API {
	return &API{
		service:   service,
		scores:    scores,
		registry:  registry,
		checker:   checker,
		generator: generator,
	}
}

// Register installs the REST routes.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/leaderboard", a.handleSubmitScore)
	mux.HandleFunc("GET /api/leaderboard", a.handleRank)
	mux.HandleFunc("DELETE /api/leaderboard", a.handleClear)
	mux.HandleFunc("POST /api/flags", a.handleReportFlag)
	mux.HandleFunc("POST /api/flags/{id}/upvote", a.handleUpvoteFlag)
	mux.HandleFunc("PATCH /api/flags/{id}", a.handleUpdateFlag)
	mux.HandleFunc("DELETE /api/flags/{id}", a.handleDeleteFlag)
	mux.HandleFunc("GET /api/quizzes/{id}/questions", a.handleStudyQuestions)
	mux.HandleFunc("POST /api/generate", a.handleGenerate)
}

type submitScoreRequest struct {
	QuizID   string `json:"quizId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Duration int64  `json:"duration"`
}

func (a *API) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := a.scores.Submit(r.Context(), req.QuizID, req.Name, req.Score, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

type rankResponse struct {
	Total        int                       `json:"total"`
	Items        []domain.LeaderboardEntry `json:"items"`
	PersonalBest *domain.LeaderboardEntry  `json:"personalBest,omitempty"`
}

func (a *API) handleRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, _ := strconv.Atoi(q.Get("page"))

	result, err := a.scores.Rank(r.Context(), q.Get("quizId"), limit, page)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := rankResponse{Total: result.Total, Items: result.Items}

	if name := q.Get("name"); name != "" {
		best, err := a.scores.PersonalBest(r.Context(), q.Get("quizId"), name)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.PersonalBest = best
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	if !a.checker.IsAdmin(callerID(r)) {
		writeError(w, domain.ErrForbidden)
		return
	}
	if err := a.scores.Clear(r.Context(), r.URL.Query().Get("quizId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reportFlagRequest struct {
	QuizID   string `json:"quizId"`
	Question string `json:"question"`
	Reason   string `json:"reason"`
}

func (a *API) handleReportFlag(w http.ResponseWriter, r *http.Request) {
	var req reportFlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	flag, err := a.registry.Report(r.Context(), req.QuizID, req.Question, req.Reason, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, flag)
}

func (a *API) handleUpvoteFlag(w http.ResponseWriter, r *http.Request) {
	count, err := a.registry.Upvote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"upvotes": count})
}

type updateFlagRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	mod, err := a.registry.Moderator(callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateFlagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	flag, err := mod.UpdateReason(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flag)
}

func (a *API) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	mod, err := a.registry.Moderator(callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := mod.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStudyQuestions serves the review view: the full tagged pool with
// answers revealed. Study never creates a session.
func (a *API) handleStudyQuestions(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.Start(r.Context(), r.PathValue("id"), callerID(r), selector.ModeStudy, selector.Params{}, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type generateRequest struct {
	Text string `json:"text"`
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if a.generator == nil {
		http.Error(w, "generation not configured", http.StatusNotImplemented)
		return
	}
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	questions, err := a.generator.FromText(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func callerID(r *http.Request) string {
	return r.Header.Get("X-User")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrFlagNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrPracticeExhausted),
		errors.Is(err, domain.ErrSessionIncomplete):
		status = http.StatusConflict
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
