package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/coaching"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

// Coaching routes run behind requirePremium, so the caller is always a
// signed-in premium user.

type coachingStartRequest struct {
	InterviewID string `json:"interviewId"`
}

func (h *Handler) HandleCoachingStart(w http.ResponseWriter, r *http.Request) {
	var req coachingStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.InterviewID == "" {
		writeError(w, http.StatusBadRequest, "Missing interviewId")
		return
	}

	ctx, span := h.begin(r, "coaching.start")
	defer span.End()

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to start coaching program")
		return
	}
	program, day, err := h.coaching.Start(ctx, auth.IdentityFrom(ctx).UserID, req.InterviewID, ai)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to start coaching program")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"programId": program.ID,
		"dayId":     day.ID,
		"questions": day.Questions,
	})
}

func (h *Handler) HandleCoachingActive(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.begin(r, "coaching.active")
	defer span.End()

	program, days, err := h.coaching.Active(ctx, auth.IdentityFrom(ctx).UserID)
	if err != nil {
		h.fail(w, span, err, "Failed to load coaching program")
		return
	}
	if program == nil {
		writeJSON(w, http.StatusOK, map[string]any{"program": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"program": program, "days": days})
}

func (h *Handler) HandleCoachingProgram(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.begin(r, "coaching.program")
	defer span.End()

	program, days, err := h.coaching.Program(ctx, auth.IdentityFrom(ctx).UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, span, err, "Failed to load program")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"program": program, "days": days})
}

func (h *Handler) HandleCoachingDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.begin(r, "coaching.day")
	defer span.End()

	day, err := h.coaching.Day(ctx, auth.IdentityFrom(ctx).UserID, chi.URLParam(r, "dayId"))
	if err != nil {
		h.fail(w, span, err, "Failed to load day")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "attempts": day.Attempts})
}

func (h *Handler) HandleCoachingDayStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.begin(r, "coaching.day_start")
	defer span.End()

	day, err := h.coaching.StartDay(ctx, auth.IdentityFrom(ctx).UserID, chi.URLParam(r, "dayId"))
	if err != nil {
		h.fail(w, span, err, "Failed to start day")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day})
}

type coachingAttemptRequest struct {
	QuestionIndex int                         `json:"questionIndex"`
	AttemptNumber int                         `json:"attemptNumber"`
	Answer        string                      `json:"answer"`
	Question      *provider.InterviewQuestion `json:"question"`
	JobListing    *provider.ParsedJobListing  `json:"jobListing"`
}

func (h *Handler) HandleCoachingAttempt(w http.ResponseWriter, r *http.Request) {
	var req coachingAttemptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Answer == "" || req.Question == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	ctx, span := h.begin(r, "coaching.attempt")
	defer span.End()

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to evaluate attempt")
		return
	}
	eval, err := h.coaching.Attempt(ctx, auth.IdentityFrom(ctx).UserID, chi.URLParam(r, "dayId"), coaching.AttemptInput{
		QuestionIndex: req.QuestionIndex,
		AttemptNumber: req.AttemptNumber,
		Answer:        req.Answer,
		Question:      req.Question,
		JobListing:    req.JobListing,
	}, ai)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to evaluate attempt")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

type coachingCompleteRequest struct {
	ProgramID string `json:"programId"`
}

type nextDay struct {
	ID        string                       `json:"id"`
	Questions []provider.InterviewQuestion `json:"questions"`
}

func (h *Handler) HandleCoachingDayComplete(w http.ResponseWriter, r *http.Request) {
	var req coachingCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProgramID == "" {
		writeError(w, http.StatusBadRequest, "Missing programId")
		return
	}

	ctx, span := h.begin(r, "coaching.day_complete")
	defer span.End()

	ai, err := h.aiFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Failed to complete day")
		return
	}
	day, err := h.coaching.CompleteDay(ctx, auth.IdentityFrom(ctx).UserID, chi.URLParam(r, "dayId"), req.ProgramID, ai)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Failed to complete day")
		return
	}
	if day == nil {
		writeJSON(w, http.StatusOK, map[string]any{"programComplete": true, "nextDay": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"programComplete": false,
		"nextDay":         nextDay{ID: day.ID, Questions: day.Questions},
	})
}
