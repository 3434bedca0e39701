package provider

import (
	"strings"
)

var seniorities = []string{"junior", "mid", "senior", "lead", "executive"}

// NormalizeJobListing coerces seniority into the closed set and replaces nil
// lists with empty ones.
func NormalizeJobListing(job *ParsedJobListing) {
	s := strings.ToLower(strings.TrimSpace(job.Seniority))
	job.Seniority = "mid"
	for _, known := range seniorities {
		if strings.Contains(s, known) {
			job.Seniority = known
			break
		}
	}
	switch {
	case strings.Contains(s, "principal"), strings.Contains(s, "staff"):
		job.Seniority = "lead"
	case strings.Contains(s, "entry"), strings.Contains(s, "intern"), strings.Contains(s, "graduate"):
		job.Seniority = "junior"
	}

	job.Title = strings.TrimSpace(job.Title)
	if strings.TrimSpace(job.Company) == "" {
		job.Company = "Unknown"
	}
	job.Skills = nonNil(job.Skills)
	job.Responsibilities = nonNil(job.Responsibilities)
	job.Qualifications = nonNil(job.Qualifications)
}

func coerceQuestionType(raw string, index int) QuestionType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(t, "ice"):
		return QuestionIcebreaker
	case strings.Contains(t, "behav"):
		return QuestionBehavioral
	case strings.Contains(t, "tech"):
		return QuestionTechnical
	case strings.Contains(t, "situ"):
		return QuestionSituational
	}
	if index == 0 {
		return QuestionIcebreaker
	}
	return QuestionBehavioral
}

// NormalizeQuestions drops blank questions, coerces types into the closed
// enum, fills or clamps difficulty to 1..5 and truncates to count. The result
// may hold fewer than count questions.
func NormalizeQuestions(qs []InterviewQuestion, count int) []InterviewQuestion {
	out := make([]InterviewQuestion, 0, len(qs))
	for _, q := range qs {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		out = append(out, q)
	}
	if count > 0 && len(out) > count {
		out = out[:count]
	}

	for i := range out {
		q := &out[i]
		q.Type = coerceQuestionType(string(q.Type), i)
		if q.Difficulty == 0 {
			q.Difficulty = defaultDifficulty(i, len(out))
		}
		q.Difficulty = clamp(q.Difficulty, 1, 5)
		q.TargetSkill = strings.TrimSpace(q.TargetSkill)
	}
	return out
}

// defaultDifficulty spreads 1..5 across n questions.
func defaultDifficulty(i, n int) int {
	if n <= 1 {
		return 1
	}
	return 1 + i*4/(n-1)
}

// ClampEvaluation keeps the score within 1..10 and replaces nil lists.
func ClampEvaluation(e *AnswerEvaluation) {
	e.Score = clamp(e.Score, 1, 10)
	e.Strengths = nonNil(e.Strengths)
	e.Improvements = nonNil(e.Improvements)
}

// ReadinessFor maps an overall score to its readiness band.
func ReadinessFor(score int) Readiness {
	switch {
	case score >= 90:
		return ReadinessExceptional
	case score >= 75:
		return ReadinessReady
	case score >= 56:
		return ReadinessAlmostThere
	case score >= 31:
		return ReadinessNeedsWork
	default:
		return ReadinessNotReady
	}
}

// ReconcileReport clamps the overall score to 1..100, caps it at 50 when the
// scored answers average below 5/10, and derives readiness from the score.
func ReconcileReport(r *InterviewReport, data *InterviewData) {
	r.OverallScore = clamp(r.OverallScore, 1, 100)

	if data != nil {
		total, n := 0, 0
		for _, a := range data.Answers {
			if a.Score != nil {
				total += *a.Score
				n++
			}
		}
		// avg < 5 without floating point: total/n < 5 <=> total < 5n
		if n > 0 && total < 5*n && r.OverallScore > 50 {
			r.OverallScore = 50
		}
	}

	r.InterviewReadiness = ReadinessFor(r.OverallScore)
	r.Strengths = nonNil(r.Strengths)
	r.AreasToImprove = nonNil(r.AreasToImprove)
	r.ActionItems = nonNil(r.ActionItems)
}

// FallbackEvaluation is returned when an evaluation cannot be produced.
func FallbackEvaluation() *AnswerEvaluation {
	return &AnswerEvaluation{
		Score:        5,
		Strengths:    []string{"Answer was provided"},
		Improvements: []string{"Unable to fully evaluate — please try again"},
		IdealAnswer:  "Evaluation was not available for this question.",
		Tip:          "Try providing more specific examples in your answer.",
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
