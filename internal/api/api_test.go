package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/auth"
	"github.com/vnmchuo/interview-gateway/internal/coaching"
	"github.com/vnmchuo/interview-gateway/internal/cost"
	"github.com/vnmchuo/interview-gateway/internal/interview"
	"github.com/vnmchuo/interview-gateway/internal/provider"
	"github.com/vnmchuo/interview-gateway/internal/scraper"
	"github.com/vnmchuo/interview-gateway/internal/tier"
	"github.com/vnmchuo/interview-gateway/internal/usage"
)

// Mock AI backend; every call meters 100 tokens before returning.
type stubAI struct {
	err        error
	score      int
	questions  int
	calls      int
	lastRaw    string
	lastReport *provider.InterviewData
}

func (s *stubAI) Name() string { return "stub-ai" }

func (s *stubAI) ParseJobListing(ctx context.Context, raw string) (*provider.ParsedJobListing, error) {
	provider.MeterFrom(ctx).AddAITokens(100)
	s.lastRaw = raw
	if s.err != nil {
		return nil, s.err
	}
	return &provider.ParsedJobListing{Title: "Senior Backend Engineer", Company: "Acme", Seniority: "senior", Skills: []string{"Python"}}, nil
}

func (s *stubAI) GenerateQuestions(ctx context.Context, job *provider.ParsedJobListing, style string, count int) ([]provider.InterviewQuestion, error) {
	provider.MeterFrom(ctx).AddAITokens(100)
	if s.err != nil {
		return nil, s.err
	}
	s.calls++
	n := count
	if s.questions > 0 {
		n = s.questions
	}
	qs := make([]provider.InterviewQuestion, n)
	for i := range qs {
		qs[i] = provider.InterviewQuestion{Question: fmt.Sprintf("Question %d.%d", s.calls, i), Type: "technical", Difficulty: i + 1}
	}
	return qs, nil
}

func (s *stubAI) EvaluateAnswer(ctx context.Context, job *provider.ParsedJobListing, q *provider.InterviewQuestion, answer string) (*provider.AnswerEvaluation, error) {
	provider.MeterFrom(ctx).AddAITokens(100)
	if s.err != nil {
		return nil, s.err
	}
	return &provider.AnswerEvaluation{Score: s.score}, nil
}

func (s *stubAI) GenerateReport(ctx context.Context, job *provider.ParsedJobListing, data *provider.InterviewData) (*provider.InterviewReport, error) {
	provider.MeterFrom(ctx).AddAITokens(100)
	s.lastReport = data
	if s.err != nil {
		return nil, s.err
	}
	return &provider.InterviewReport{OverallScore: 85, InterviewReadiness: provider.ReadinessReady}, nil
}

type stubVoice struct {
	err error
}

func (s *stubVoice) Name() string { return "stub-voice" }

func (s *stubVoice) TextToSpeech(ctx context.Context, text, voiceID string) (*provider.Audio, error) {
	if s.err != nil {
		return nil, s.err
	}
	provider.MeterFrom(ctx).AddTTSChars(int64(len(text)))
	return &provider.Audio{Body: io.NopCloser(strings.NewReader("ID3-audio")), ContentType: "audio/mpeg"}, nil
}

func (s *stubVoice) SpeechToText(ctx context.Context, audio []byte, filename string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	provider.MeterFrom(ctx).AddSTTSeconds(90)
	return "transcribed " + filename, nil
}

type stubProviders struct {
	ai    *stubAI
	voice *stubVoice
	err   error
}

func (s *stubProviders) AI(string) (provider.AIProvider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ai, nil
}

func (s *stubProviders) Voice(string) (provider.VoiceProvider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.voice, nil
}

type stubScraper struct {
	text string
	err  error
}

func (s *stubScraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	return s.text, s.err
}

type testEnv struct {
	handler    *Handler
	providers  *stubProviders
	scraper    *stubScraper
	interviews *interview.MemoryStore
	usage      *usage.Tracker
	cost       *cost.Tracker
	catalog    *tier.Catalog
	mux        chi.Router
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	one := decimal.NewFromInt(1)
	e := &testEnv{
		providers:  &stubProviders{ai: &stubAI{score: 7}, voice: &stubVoice{}},
		scraper:    &stubScraper{text: "Scraped posting"},
		interviews: interview.NewMemoryStore(),
		usage:      usage.NewTracker(usage.NewMemoryStore()),
		cost:       cost.NewTracker(cost.NewMemoryStore(), cost.Rates{AIToken: one, TTSChar: one, STTMinute: one}, decimal.NewFromInt(1_000_000), logger),
		catalog:    tier.DefaultCatalog(),
	}
	e.handler = NewHandler(Deps{
		Providers:  e.providers,
		Scraper:    e.scraper,
		Interviews: e.interviews,
		Coaching:   coaching.NewService(coaching.NewMemoryStore(), e.interviews, logger),
		Usage:      e.usage,
		Cost:       e.cost,
		Catalog:    e.catalog,
		Tracer:     noop.NewTracerProvider().Tracer("test"),
		Logger:     logger,
	})
	e.mux = chi.NewRouter()
	e.mux.Route("/api", e.handler.Mount)
	return e
}

var (
	anon    = auth.Anonymous()
	proUser = auth.Identity{UserID: "user-1", Tier: tier.Pro}
	premium = auth.Identity{UserID: "user-2", Tier: tier.Premium}
)

// serve runs req as if the governance chain had admitted id at level.
func (e *testEnv) serve(t *testing.T, req *http.Request, id auth.Identity, level cost.Level) *httptest.ResponseRecorder {
	t.Helper()
	ctx := auth.WithIdentity(req.Context(), id)
	rec, err := e.usage.Check(ctx, id.UserID, e.catalog.Get(string(id.Tier)), false)
	if err != nil {
		t.Fatalf("usage check failed: %v", err)
	}
	ctx = usage.WithRecorder(ctx, rec)
	ctx = cost.WithLevel(ctx, level)

	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func (e *testEnv) post(t *testing.T, path string, body any, id auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return e.serve(t, req, id, cost.LevelNone)
}

func (e *testEnv) get(t *testing.T, path string, id auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	return e.serve(t, httptest.NewRequest(http.MethodGet, path, nil), id, cost.LevelNone)
}

func (e *testEnv) aiTokensToday(t *testing.T, userID string) int64 {
	t.Helper()
	rec, err := e.usage.Today(context.Background(), userID)
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	return rec.AITokens
}

func (e *testEnv) breakdown(t *testing.T) cost.Breakdown {
	t.Helper()
	st, err := e.cost.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	return st.Breakdown
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	s, _ := body["error"].(string)
	return s
}

func TestParse_PasteRecordsUsageAndCost(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/parse", map[string]string{"input": "Senior Backend Engineer at Acme", "mode": "paste"}, anon)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var job provider.ParsedJobListing
	decodeBody(t, rr, &job)
	if job.Seniority != "senior" || job.Raw != "Senior Backend Engineer at Acme" {
		t.Errorf("Unexpected listing %+v", job)
	}
	if got := e.aiTokensToday(t, auth.AnonymousUserID); got != 100 {
		t.Errorf("Expected 100 AI tokens recorded, got %d", got)
	}
	if b := e.breakdown(t); b.AI != "100.00" {
		t.Errorf("Expected AI cost 100.00, got %s", b.AI)
	}
}

func TestParse_MissingFields(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/parse", map[string]string{"input": "x"}, anon)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr) != "Missing input or mode" {
		t.Errorf("Expected 400 Missing input or mode, got %d", rr.Code)
	}
}

func TestParse_URLModePrefixesSource(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/parse", map[string]string{"input": "https://jobs.example.com/1", "mode": "url"}, anon)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	want := "Source URL: https://jobs.example.com/1\n\nScraped posting"
	if e.providers.ai.lastRaw != want {
		t.Errorf("Expected %q, got %q", want, e.providers.ai.lastRaw)
	}
}

func TestParse_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		scrapeErr  error
		aiErr      error
		providers  error
		wantStatus int
		wantError  string
	}{
		{
			name:       "scrape blocked",
			scrapeErr:  &scraper.BlockedError{},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  (&scraper.BlockedError{}).UserMessage(),
		},
		{
			name:       "invalid url",
			scrapeErr:  scraper.ErrInvalidURL,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid URL",
		},
		{
			name:       "vendor rate limited",
			aiErr:      &provider.RateLimitError{Provider: "gemini", Message: "Gemini rate limit hit. Retry after 37s"},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "Gemini rate limit hit. Retry after 37s",
		},
		{
			name:       "breaker open",
			aiErr:      provider.ErrUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Provider temporarily unavailable",
		},
		{
			name:       "unknown",
			aiErr:      errors.New("boom: internal detail"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to parse job listing",
		},
		{
			name:       "no backend",
			providers:  errors.New("no ai backend registered"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to parse job listing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.scraper.err = tt.scrapeErr
			e.providers.ai.err = tt.aiErr
			e.providers.err = tt.providers

			rr := e.post(t, "/api/interview/parse", map[string]string{"input": "https://x.example/job", "mode": "url"}, anon)
			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := errorOf(t, rr); got != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, got)
			}
		})
	}
}

func TestParse_FailedCallStillSettlesUsage(t *testing.T) {
	e := newEnv(t)
	e.providers.ai.err = errors.New("vendor 500")
	e.post(t, "/api/interview/parse", map[string]string{"input": "text", "mode": "paste"}, proUser)
	if got := e.aiTokensToday(t, proUser.UserID); got != 100 {
		t.Errorf("Expected partial usage recorded, got %d", got)
	}
}

func TestBodyTooLarge(t *testing.T) {
	e := newEnv(t)
	big := strings.Repeat("a", maxJSONBody+1)
	rr := e.post(t, "/api/interview/parse", map[string]string{"input": big, "mode": "paste"}, anon)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rr.Code)
	}
}

func TestQuestions_AnonymousIsNotPersisted(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/questions", map[string]any{"jobListing": map[string]string{"title": "SRE"}}, anon)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp questionsResponse
	decodeBody(t, rr, &resp)
	if len(resp.Questions) != defaultQuestionCount {
		t.Errorf("Expected %d questions, got %d", defaultQuestionCount, len(resp.Questions))
	}
	if resp.InterviewID != nil {
		t.Error("Expected null interviewId for anonymous caller")
	}
}

func TestQuestions_TruncatesAndPersists(t *testing.T) {
	e := newEnv(t)
	e.providers.ai.questions = 8
	rr := e.post(t, "/api/interview/questions", map[string]any{
		"jobListing": map[string]string{"title": "SRE"}, "style": "technical", "count": 5,
	}, proUser)
	var resp questionsResponse
	decodeBody(t, rr, &resp)
	if len(resp.Questions) != 5 {
		t.Fatalf("Expected 5 questions, got %d", len(resp.Questions))
	}
	for _, q := range resp.Questions {
		switch q.Type {
		case provider.QuestionBehavioral, provider.QuestionTechnical, provider.QuestionSituational, provider.QuestionIcebreaker:
		default:
			t.Errorf("Question type %q outside the closed set", q.Type)
		}
	}
	if resp.InterviewID == nil {
		t.Fatal("Expected interviewId for signed-in caller")
	}
	iv, _, err := e.interviews.Get(context.Background(), *resp.InterviewID)
	if err != nil || iv.UserID != proUser.UserID || iv.Style != "technical" || len(iv.Questions) != 5 {
		t.Errorf("Unexpected stored interview %+v %v", iv, err)
	}
}

func TestQuestions_MissingListing(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/questions", map[string]any{"style": "general"}, anon)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr) != "Missing job listing" {
		t.Errorf("Expected 400 Missing job listing, got %d", rr.Code)
	}
}

func createInterview(t *testing.T, e *testEnv, owner string) string {
	t.Helper()
	id, err := e.interviews.Create(context.Background(), interview.New(owner, &provider.ParsedJobListing{Title: "SRE"}, "general", nil))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return id
}

func TestEvaluate_ClampsAndPersistsForOwner(t *testing.T) {
	e := newEnv(t)
	e.providers.ai.score = 0
	ivID := createInterview(t, e, proUser.UserID)

	body := map[string]any{
		"jobListing":    map[string]string{"title": "SRE"},
		"question":      map[string]any{"question": "Why us?", "type": "behavioral"},
		"answer":        "idk",
		"interviewId":   ivID,
		"questionIndex": 2,
	}
	rr := e.post(t, "/api/interview/evaluate", body, proUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var eval provider.AnswerEvaluation
	decodeBody(t, rr, &eval)
	if eval.Score != 1 {
		t.Errorf("Expected score clamped to 1, got %d", eval.Score)
	}

	_, answers, _ := e.interviews.Get(context.Background(), ivID)
	if len(answers) != 1 || answers[0].QuestionIndex != 2 || *answers[0].Score != 1 {
		t.Errorf("Expected persisted answer, got %+v", answers)
	}

	e.post(t, "/api/interview/evaluate", body, premium)
	_, answers, _ = e.interviews.Get(context.Background(), ivID)
	if len(answers) != 1 {
		t.Error("Answer from another user must not be persisted")
	}
}

func TestEvaluate_MissingFields(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/interview/evaluate", map[string]any{"answer": "x"}, anon)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr) != "Missing required fields" {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestReport_ReconcilesCompletesAndLists(t *testing.T) {
	e := newEnv(t)
	ivID := createInterview(t, e, proUser.UserID)
	low := 3
	body := map[string]any{
		"jobListing": map[string]string{"title": "SRE"},
		"interview": provider.InterviewData{
			Questions: []provider.InterviewQuestion{{Question: "Q1"}, {Question: "Q2"}},
			Answers:   []provider.AnswerRecord{{Answer: "a", Score: &low}, {Answer: "b", Score: &low}},
		},
		"interviewId": ivID,
	}
	rr := e.post(t, "/api/interview/report", body, proUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var report provider.InterviewReport
	decodeBody(t, rr, &report)
	if report.OverallScore > 50 {
		t.Errorf("Expected score capped at 50, got %d", report.OverallScore)
	}
	if report.InterviewReadiness != provider.ReadinessNeedsWork && report.InterviewReadiness != provider.ReadinessNotReady {
		t.Errorf("Unexpected readiness %s", report.InterviewReadiness)
	}
	if e.providers.ai.lastReport.Concise {
		t.Error("Expected full report at level none")
	}

	rr = e.get(t, "/api/interview/history", proUser)
	var list []interview.Interview
	decodeBody(t, rr, &list)
	if len(list) != 1 || list[0].ID != ivID || list[0].Status != interview.StatusCompleted {
		t.Errorf("Expected completed interview in history, got %+v", list)
	}
}

func TestReport_ConciseWhenDegraded(t *testing.T) {
	e := newEnv(t)
	b, _ := json.Marshal(map[string]any{
		"jobListing": map[string]string{"title": "SRE"},
		"interview":  map[string]any{"questions": []any{}, "answers": []any{}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/interview/report", bytes.NewReader(b))
	rr := e.serve(t, req, premium, cost.LevelDegraded)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !e.providers.ai.lastReport.Concise {
		t.Error("Expected concise report when degraded")
	}
}

func TestHistoryAndDetail_Auth(t *testing.T) {
	e := newEnv(t)
	ivID := createInterview(t, e, proUser.UserID)

	if rr := e.get(t, "/api/interview/history", anon); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous history, got %d", rr.Code)
	}
	if rr := e.get(t, "/api/interview/"+ivID, anon); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous detail, got %d", rr.Code)
	}
	if rr := e.get(t, "/api/interview/"+ivID, premium); rr.Code != http.StatusForbidden || errorOf(t, rr) != "Access denied" {
		t.Errorf("Expected 403 for foreign interview, got %d", rr.Code)
	}
	if rr := e.get(t, "/api/interview/missing", proUser); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	rr := e.get(t, "/api/interview/"+ivID, proUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body map[string]json.RawMessage
	decodeBody(t, rr, &body)
	if _, ok := body["interview"]; !ok {
		t.Error("Expected interview field")
	}
	if _, ok := body["answers"]; !ok {
		t.Error("Expected answers field")
	}
}

func TestTTS_StreamsAudioAndMetersChars(t *testing.T) {
	e := newEnv(t)
	rr := e.post(t, "/api/voice/tts", map[string]string{"text": "Hello there"}, proUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "audio/mpeg" || rr.Body.String() != "ID3-audio" {
		t.Errorf("Unexpected audio response %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}
	rec, _ := e.usage.Today(context.Background(), proUser.UserID)
	if rec.TTSChars != int64(len("Hello there")) {
		t.Errorf("Expected %d TTS chars, got %d", len("Hello there"), rec.TTSChars)
	}
	if b := e.breakdown(t); b.TTS != "11.00" {
		t.Errorf("Expected TTS cost 11.00, got %s", b.TTS)
	}
}

func TestTTS_Errors(t *testing.T) {
	e := newEnv(t)
	if rr := e.post(t, "/api/voice/tts", map[string]string{}, proUser); rr.Code != http.StatusBadRequest || errorOf(t, rr) != "Missing text" {
		t.Errorf("Expected 400 Missing text, got %d", rr.Code)
	}
	e.providers.voice.err = errors.New("vendor down")
	if rr := e.post(t, "/api/voice/tts", map[string]string{"text": "hi"}, proUser); rr.Code != http.StatusInternalServerError || errorOf(t, rr) != "TTS failed" {
		t.Errorf("Expected 500 TTS failed, got %d", rr.Code)
	}
}

func multipartAudio(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "answer.m4a")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/stt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSTT_TranscribesAndChargesMinutes(t *testing.T) {
	e := newEnv(t)
	rr := e.serve(t, multipartAudio(t, "audio", []byte("fake-audio")), proUser, cost.LevelNone)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	decodeBody(t, rr, &body)
	if body["text"] != "transcribed answer.m4a" {
		t.Errorf("Unexpected text %q", body["text"])
	}
	if b := e.breakdown(t); b.STT != "1.50" {
		t.Errorf("Expected 1.5 minutes charged, got %s", b.STT)
	}
}

func TestSTT_MissingFile(t *testing.T) {
	e := newEnv(t)
	rr := e.serve(t, multipartAudio(t, "other", []byte("x")), proUser, cost.LevelNone)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr) != "No audio file" {
		t.Errorf("Expected 400 No audio file, got %d", rr.Code)
	}
}

func TestCoaching_TierGate(t *testing.T) {
	e := newEnv(t)
	if rr := e.get(t, "/api/coaching/active", anon); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
	rr := e.get(t, "/api/coaching/active", proUser)
	if rr.Code != http.StatusForbidden || errorOf(t, rr) != "Coaching is a Premium feature" {
		t.Errorf("Expected 403 for pro tier, got %d", rr.Code)
	}
}

func TestCoaching_Flow(t *testing.T) {
	e := newEnv(t)
	ivID := createInterview(t, e, premium.UserID)

	rr := e.post(t, "/api/coaching/start", map[string]string{"interviewId": ivID}, premium)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var start struct {
		ProgramID string                       `json:"programId"`
		DayID     string                       `json:"dayId"`
		Questions []provider.InterviewQuestion `json:"questions"`
	}
	decodeBody(t, rr, &start)
	if len(start.Questions) != coaching.QuestionsPerDay {
		t.Errorf("Expected %d questions, got %d", coaching.QuestionsPerDay, len(start.Questions))
	}

	rr = e.post(t, "/api/coaching/day/"+start.DayID+"/attempt", map[string]any{
		"questionIndex": 0, "attemptNumber": 1, "answer": "My answer", "question": start.Questions[0],
	}, premium)
	var eval coaching.Evaluation
	decodeBody(t, rr, &eval)
	if eval.Score != 7 || !eval.ShouldRetry {
		t.Errorf("Unexpected coaching evaluation %+v", eval)
	}

	rr = e.post(t, "/api/coaching/day/"+start.DayID+"/complete", map[string]string{"programId": start.ProgramID}, premium)
	var done struct {
		ProgramComplete bool     `json:"programComplete"`
		NextDay         *nextDay `json:"nextDay"`
	}
	decodeBody(t, rr, &done)
	if done.ProgramComplete || done.NextDay == nil || done.NextDay.ID == "" {
		t.Errorf("Expected a next day, got %+v", done)
	}

	if rr := e.get(t, "/api/coaching/program/"+start.ProgramID, premium); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for program, got %d", rr.Code)
	}
}

func TestCoaching_Errors(t *testing.T) {
	e := newEnv(t)
	other := createInterview(t, e, "someone-else")

	if rr := e.post(t, "/api/coaching/start", map[string]string{}, premium); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing interviewId, got %d", rr.Code)
	}
	if rr := e.post(t, "/api/coaching/start", map[string]string{"interviewId": other}, premium); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign interview, got %d", rr.Code)
	}
	if rr := e.get(t, "/api/coaching/day/missing", premium); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing day, got %d", rr.Code)
	}
	rr := e.get(t, "/api/coaching/active", premium)
	var body map[string]any
	decodeBody(t, rr, &body)
	if v, ok := body["program"]; !ok || v != nil {
		t.Errorf("Expected null program, got %v", body)
	}
}

func TestUsage(t *testing.T) {
	e := newEnv(t)
	e.post(t, "/api/interview/parse", map[string]string{"input": "text", "mode": "paste"}, proUser)

	rr := e.get(t, "/api/usage", proUser)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body struct {
		Tier   string `json:"tier"`
		Usage  usage.Record
		Limits map[string]float64 `json:"limits"`
	}
	decodeBody(t, rr, &body)
	if body.Tier != "pro" || body.Usage.AITokens != 100 || body.Limits["dailyAiTokens"] != 50000 {
		t.Errorf("Unexpected usage body %+v", body)
	}
}

func TestAdminOnly(t *testing.T) {
	e := newEnv(t)
	route := func(token string) http.Handler {
		return AdminOnly(token)(http.HandlerFunc(e.handler.HandleCostStatus))
	}

	rr := httptest.NewRecorder()
	route("").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/cost", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when no admin token configured, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/cost", nil)
	req.Header.Set(AdminTokenHeader, "wrong")
	route("s3cret").ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal/cost", nil)
	req.Header.Set(AdminTokenHeader, "s3cret")
	route("s3cret").ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var st map[string]any
	decodeBody(t, rr, &st)
	if st["budget"] != "1000000.00" || st["degradationLevel"] != "none" {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]string
	decodeBody(t, rr, &body)
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Errorf("Unexpected health body %v", body)
	}
}
