package provider

import (
	"fmt"
	"strings"
)

// Input bounds applied before text is sent to a vendor.
const (
	MaxListingChars = 8000
	MaxAnswerChars  = 3000
)

const ParseJobListingPrompt = `You are a job listing parser. Extract structured information from the provided job listing.

IMPORTANT: The text may contain multiple job listings or extra page content. If a "Source URL" is provided, use it to identify the SPECIFIC role the user is interested in (the URL often contains the job title). Ignore unrelated listings, navigation, and sidebar content.

Return JSON with these fields:
- title: Job title
- company: Company name (or "Unknown")
- seniority: junior | mid | senior | lead | executive
- skills: string[] of required skills
- responsibilities: string[] of key responsibilities
- qualifications: string[] of required qualifications
- industry: string
- summary: 2-3 sentence summary of the role

Return ONLY valid JSON, no markdown.`

const GenerateQuestionsPrompt = `You are an expert interviewer. Based on the job listing context provided, generate interview questions.

Rules:
- Questions must be directly relevant to the role
- Mix question types: behavioral, technical, situational
- Start with an icebreaker, escalate difficulty
- Each question should test a different skill/competency
- Be conversational but professional
- Generate exactly the number of questions requested

Return JSON array of objects with:
- question: The interview question
- type: "behavioral" | "technical" | "situational" | "icebreaker"
- targetSkill: What skill/competency this tests
- difficulty: 1-5`

const EvaluateAnswerPrompt = `You are a strict but fair interview coach evaluating a candidate's response.

Be HONEST and CRITICAL. The candidate needs truthful feedback to improve. Inflated scores waste their time.

Score the answer 1-10 using this scale strictly:
- 1-2: No answer, refusal, or completely irrelevant response
- 3-4: Vague, generic, or shows no real understanding of the topic
- 5-6: Partially correct but lacks depth, specifics, or examples
- 7-8: Good answer with specific examples and clear reasoning
- 9-10: Exceptional: detailed, well-structured, demonstrates deep expertise

Scoring rules:
- An answer that says "I don't know" or is blank MUST score 1-2
- Generic filler without substance (e.g. "I would do my best") MUST score 3-4
- Only give 7+ if the candidate provides SPECIFIC examples or demonstrates real knowledge
- Never round up out of kindness. Score what was actually said

Return JSON with:
- score: number (1-10)
- strengths: string[] of what they did well (can be empty if nothing was strong)
- improvements: string[] of specific ways to improve
- idealAnswer: A brief example of a strong answer
- tip: One actionable coaching tip`

const GenerateReportPrompt = `You are a strict but supportive career coach generating a post-interview report.

Be HONEST. The candidate needs accurate feedback. An inflated score gives false confidence.

Scoring guidelines for overallScore (1-100):
- 0-30: Did not answer most questions or gave irrelevant responses
- 31-55: Attempted answers but lacked substance, specifics, or relevant knowledge
- 56-74: Mixed to solid performance with clear gaps
- 75-89: Strong candidate, well-prepared with minor areas to work on
- 90-100: Exceptional: consistently detailed, specific, and impressive answers

The overallScore MUST reflect the individual question scores. If average question scores are below 5/10, the overallScore should NOT exceed 50. Do not inflate.

interviewReadiness mapping:
- "not_ready": overallScore 0-30
- "needs_work": overallScore 31-55
- "almost_there": overallScore 56-74
- "ready": overallScore 75-89
- "exceptional": overallScore 90-100

Return JSON with:
- overallScore: number (1-100)
- summary: 2-3 sentence overall assessment (be direct and honest)
- strengths: string[] top 3 things the candidate did well
- areasToImprove: string[] top 3 areas needing work
- actionItems: string[] specific things to practice
- successProfile: What a successful application for this role looks like (2-3 sentences)
- interviewReadiness: "not_ready" | "needs_work" | "almost_there" | "ready" | "exceptional"`

const conciseReportNote = `

Keep this report brief: a one-sentence summary, at most two items per list, and a one-sentence successProfile.`

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// ListingMessage is the user message for ParseJobListing.
func ListingMessage(rawText string) string {
	return Truncate(rawText, MaxListingChars)
}

// JobContext summarizes a parsed listing for follow-up prompts.
func JobContext(job *ParsedJobListing) string {
	if job == nil {
		job = &ParsedJobListing{}
	}
	skills := strings.Join(job.Skills, ", ")
	return fmt.Sprintf("Role: %s at %s\nSeniority: %s\nKey Skills: %s\nSummary: %s",
		orDefault(job.Title, "Unknown"),
		orDefault(job.Company, "Unknown"),
		orDefault(job.Seniority, "unknown"),
		orDefault(skills, "Not specified"),
		orDefault(job.Summary, "No summary available"),
	)
}

func QuestionsMessage(job *ParsedJobListing, style string, count int) string {
	return fmt.Sprintf("%s\nInterview Style: %s\nNumber of Questions: %d",
		JobContext(job), orDefault(style, "general"), count)
}

func EvaluationMessage(job *ParsedJobListing, q *InterviewQuestion, answer string) string {
	if job == nil {
		job = &ParsedJobListing{}
	}
	return fmt.Sprintf("Job: %s at %s\nQuestion: %s\nQuestion Type: %s\nTarget Skill: %s\n\nCandidate's Answer:\n%s",
		orDefault(job.Title, "Unknown"),
		orDefault(job.Company, "Unknown"),
		q.Question,
		q.Type,
		q.TargetSkill,
		Truncate(answer, MaxAnswerChars),
	)
}

func ReportMessage(job *ParsedJobListing, data *InterviewData) string {
	var qa []string
	for i, a := range data.Answers {
		var q InterviewQuestion
		if i < len(data.Questions) {
			q = data.Questions[i]
		}
		score := "N/A"
		if a.Score != nil {
			score = fmt.Sprintf("%d", *a.Score)
		}
		qa = append(qa, fmt.Sprintf("Q%d (%s): %s\nAnswer: %s\nScore: %s/10",
			i+1, q.Type, q.Question, Truncate(a.Answer, MaxAnswerChars), score))
	}

	msg := fmt.Sprintf("%s\n\nInterview Results:\n%s", JobContext(job), strings.Join(qa, "\n\n"))
	if data.Concise {
		msg += conciseReportNote
	}
	return msg
}
