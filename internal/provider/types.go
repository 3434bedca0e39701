package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type ParsedJobListing struct {
	Title            string   `json:"title"`
	Company          string   `json:"company"`
	Seniority        string   `json:"seniority"`
	Skills           []string `json:"skills"`
	Responsibilities []string `json:"responsibilities"`
	Qualifications   []string `json:"qualifications"`
	Industry         string   `json:"industry"`
	Summary          string   `json:"summary"`
	// Raw is the text the listing was parsed from.
	Raw string `json:"raw,omitempty"`
}

type QuestionType string

const (
	QuestionBehavioral  QuestionType = "behavioral"
	QuestionTechnical   QuestionType = "technical"
	QuestionSituational QuestionType = "situational"
	QuestionIcebreaker  QuestionType = "icebreaker"
)

type InterviewQuestion struct {
	Question    string       `json:"question"`
	Type        QuestionType `json:"type"`
	TargetSkill string       `json:"targetSkill"`
	Difficulty  int          `json:"difficulty"`
}

func (q *InterviewQuestion) UnmarshalJSON(b []byte) error {
	type plain InterviewQuestion
	aux := struct {
		*plain
		Difficulty looseInt `json:"difficulty"`
	}{plain: (*plain)(q)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	q.Difficulty = int(aux.Difficulty)
	return nil
}

type AnswerEvaluation struct {
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	IdealAnswer  string   `json:"idealAnswer"`
	Tip          string   `json:"tip"`
}

func (e *AnswerEvaluation) UnmarshalJSON(b []byte) error {
	type plain AnswerEvaluation
	aux := struct {
		*plain
		Score looseInt `json:"score"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Score = int(aux.Score)
	return nil
}

type Readiness string

const (
	ReadinessNotReady    Readiness = "not_ready"
	ReadinessNeedsWork   Readiness = "needs_work"
	ReadinessAlmostThere Readiness = "almost_there"
	ReadinessReady       Readiness = "ready"
	ReadinessExceptional Readiness = "exceptional"
)

type InterviewReport struct {
	OverallScore       int       `json:"overallScore"`
	Summary            string    `json:"summary"`
	InterviewReadiness Readiness `json:"interviewReadiness"`
	Strengths          []string  `json:"strengths"`
	AreasToImprove     []string  `json:"areasToImprove"`
	ActionItems        []string  `json:"actionItems"`
	SuccessProfile     string    `json:"successProfile"`
}

func (r *InterviewReport) UnmarshalJSON(b []byte) error {
	type plain InterviewReport
	aux := struct {
		*plain
		OverallScore looseInt `json:"overallScore"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.OverallScore = int(aux.OverallScore)
	return nil
}

// AnswerRecord is one answered question; Score is nil until evaluated.
type AnswerRecord struct {
	Answer string `json:"answer"`
	Score  *int   `json:"score,omitempty"`
}

type InterviewData struct {
	Questions []InterviewQuestion `json:"questions"`
	Answers   []AnswerRecord      `json:"answers"`
	Style     string              `json:"style"`
	// Concise asks for a shortened report.
	Concise bool `json:"-"`
}

// looseInt accepts numbers, fractional numbers and numeric strings, which
// small models emit interchangeably.
type looseInt int

func (n *looseInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = looseInt(math.Round(f))
	return nil
}
