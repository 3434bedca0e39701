package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/interview"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	defaultQuestionCount = 5
	maxQuestionCount     = 15
)

type parseRequest struct {
	Input string `json:"input"`
	Mode  string `json:"mode"`
}

func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Input == "" || req.Mode == "" {
		writeError(w, http.StatusBadRequest, "Missing input or mode")
		return
	}

	ctx, span := h.begin(r, "interview.parse")
	defer span.End()

	raw := req.Input
	if req.Mode == "url" {
		text, err := h.scraper.Scrape(ctx, req.Input)
		if err != nil {
			h.fail(w, span, err, "Failed to parse job listing")
			return
		}
		raw = "Source URL: " + req.Input + "\n\n" + text
	}

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to parse job listing")
		return
	}
	job, err := ai.ParseJobListing(ctx, raw)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to parse job listing")
		return
	}

	provider.NormalizeJobListing(job)
	job.Raw = raw
	writeJSON(w, http.StatusOK, job)
}

type questionsRequest struct {
	JobListing *provider.ParsedJobListing `json:"jobListing"`
	Style      string                     `json:"style"`
	Count      int                        `json:"count"`
}

type questionsResponse struct {
	Questions   []provider.InterviewQuestion `json:"questions"`
	InterviewID *string                      `json:"interviewId"`
}

func (h *Handler) HandleQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.JobListing == nil {
		writeError(w, http.StatusBadRequest, "Missing job listing")
		return
	}
	count := req.Count
	if count <= 0 {
		count = defaultQuestionCount
	}
	if count > maxQuestionCount {
		count = maxQuestionCount
	}

	ctx, span := h.begin(r, "interview.questions")
	defer span.End()

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to generate questions")
		return
	}
	qs, err := ai.GenerateQuestions(ctx, req.JobListing, req.Style, count)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to generate questions")
		return
	}

	qs = provider.NormalizeQuestions(qs, count)
	if len(qs) < count {
		h.logger.Warn("fewer questions than requested", zap.Int("requested", count), zap.Int("received", len(qs)))
	}

	resp := questionsResponse{Questions: qs}
	if id := auth.IdentityFrom(ctx); !id.IsAnonymous() {
		ivID, err := h.interviews.Create(ctx, interview.New(id.UserID, req.JobListing, req.Style, qs))
		if err != nil {
			h.logger.Warn("failed to persist interview", zap.Error(err))
		} else {
			resp.InterviewID = &ivID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type evaluateRequest struct {
	JobListing    *provider.ParsedJobListing  `json:"jobListing"`
	Question      *provider.InterviewQuestion `json:"question"`
	Answer        string                      `json:"answer"`
	InterviewID   string                      `json:"interviewId"`
	QuestionIndex int                         `json:"questionIndex"`
}

func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.JobListing == nil || req.Question == nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ctx, span := h.begin(r, "interview.evaluate")
	defer span.End()

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to evaluate answer")
		return
	}
	eval, err := ai.EvaluateAnswer(ctx, req.JobListing, req.Question, req.Answer)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to evaluate answer")
		return
	}
	provider.ClampEvaluation(eval)

	if req.InterviewID != "" && h.ownsInterview(ctx, req.InterviewID) {
		a := interview.NewAnswer(req.InterviewID, req.QuestionIndex, req.Question, req.Answer, eval)
		if _, err := h.interviews.SaveAnswer(ctx, a); err != nil {
			h.logger.Warn("failed to persist answer", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, eval)
}

type reportRequest struct {
	JobListing  *provider.ParsedJobListing `json:"jobListing"`
	Interview   *provider.InterviewData    `json:"interview"`
	InterviewID string                     `json:"interviewId"`
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.JobListing == nil || req.Interview == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ctx, span := h.begin(r, "interview.report")
	defer span.End()

	req.Interview.Concise = cost.LevelFrom(ctx) >= cost.LevelDegraded

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to generate report")
		return
	}
	report, err := ai.GenerateReport(ctx, req.JobListing, req.Interview)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to generate report")
		return
	}
	provider.ReconcileReport(report, req.Interview)

	if req.InterviewID != "" && h.ownsInterview(ctx, req.InterviewID) {
		if err := h.interviews.Complete(ctx, req.InterviewID, report); err != nil {
			h.logger.Warn("failed to complete interview", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// ownsInterview reports whether the caller is signed in and owns the stored
// interview. Lookup failures only skip persistence.
func (h *Handler) ownsInterview(ctx context.Context, interviewID string) bool {
	id := auth.IdentityFrom(ctx)
	if id.IsAnonymous() {
		return false
	}
	iv, _, err := h.interviews.Get(ctx, interviewID)
	if err != nil {
		h.logger.Warn("failed to load interview", zap.String("interview_id", interviewID), zap.Error(err))
		return false
	}
	if iv.UserID != id.UserID {
		h.logger.Warn("interview belongs to another user", zap.String("interview_id", interviewID))
		return false
	}
	return true
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.interviews.ListCompleted(r.Context(), id.UserID, interview.HistoryLimit)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if list == nil {
		list = []*interview.Interview{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := requireUser(w, r)
	if !ok {
		return
	}
	iv, answers, err := h.interviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Interview not found")
			return
		}
		h.logger.Error("failed to load interview", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load interview")
		return
	}
	if iv.UserID != id.UserID {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interview": iv, "answers": answers})
}
