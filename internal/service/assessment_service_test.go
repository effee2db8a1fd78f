package service

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/internal/quizgen"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/testutil"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/llm"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []llm.Prompt
}

func (f *fakeLLM) Provider() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, p llm.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type memoryLogs struct {
	mu      sync.Mutex
	entries []model.GenerationLog
}

func (m *memoryLogs) Save(_ context.Context, entry *model.GenerationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryLogs) ListByAssessment(_ context.Context, assessmentID uint, limit int64) ([]model.GenerationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GenerationLog
	for i := len(m.entries) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if m.entries[i].AssessmentID == assessmentID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type testEnv struct {
	db          *gorm.DB
	storageDir  string
	assessments *AssessmentService
	feedback    *FeedbackService
}

func newTestEnv(t *testing.T, client *fakeLLM, fallback quizgen.FallbackProvider) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	dir := t.TempDir()

	var c llm.Client
	if client != nil {
		c = client
	}

	cfg := &config.Config{
		Upload: config.UploadConfig{MaxSizeMB: 10, AllowedExtensions: []string{".pdf", ".txt"}},
		Generation: config.GenerationConfig{
			AIShare:         0.7,
			GenerateCount:   10,
			FallbackOnError: true,
		},
	}
	storage := &StorageService{
		Provider: &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: dir}},
		Expiry:   time.Minute,
	}
	retrier := &llm.Retrier{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
	augmenter := quizgen.NewAugmenter(c, retrier, quizgen.AugmenterOptions{
		Fallback:        fallback,
		FallbackOnError: true,
	})

	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	svc := NewAssessmentService(assessmentRepo, submissionRepo, storage,
		repository.NewAttemptCache(nil, 0), nil, augmenter, cfg)
	svc.NewRand = func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

	fb := NewFeedbackService(submissionRepo, assessmentRepo, repository.NewFeedbackRepository(db), nil, c, 2048)
	return &testEnv{db: db, storageDir: dir, assessments: svc, feedback: fb}
}

func quizDocument(n int) []byte {
	var b strings.Builder
	b.WriteString("Chemistry Unit Test\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. Original question number %d?\nA. alpha\nB. beta\nC. gamma\nD. delta\n\n", i, i)
	}
	b.WriteString("Answers:\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. B\n", i)
	}
	return []byte(b.String())
}

const generatedReply = `1. Generated question one?
A. w
B. x
C. y
D. z
Correct: A

2. Generated question two?
A. w
B. x
C. y
D. z
Correct: C
`

func uploadInput(teacherID uint, filename string, data []byte) UploadInput {
	return UploadInput{
		TeacherID:      teacherID,
		AssessmentName: "Unit 3",
		Subject:        "Chemistry",
		GradeLevel:     "10",
		Filename:       filename,
		Data:           data,
	}
}

func countSources(qs []model.AssessmentQuestion) map[model.QuestionSource]int {
	out := make(map[model.QuestionSource]int)
	for _, q := range qs {
		out[q.Source]++
	}
	return out
}

func storedFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestUploadCombinesOriginalAndGenerated(t *testing.T) {
	client := &fakeLLM{reply: generatedReply}
	env := newTestEnv(t, client, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)

	res, err := env.assessments.Upload(context.Background(), uploadInput(teacher.ID, "chemistry_unit.txt", quizDocument(10)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// 10 道原题 => D = 5，目标生成 4 道，模型只给出 2 道，其余用原题补齐
	a := res.Assessment
	if len(a.Questions) != 5 {
		t.Fatalf("questions = %d, want 5", len(a.Questions))
	}
	sources := countSources(a.Questions)
	if sources[model.SourceOriginal] != 3 || sources[model.SourceAI] != 2 {
		t.Fatalf("sources = %v", sources)
	}
	if res.GenerationSource != quizgen.SourceModel || res.GeneratedCount != 2 || res.OriginalCount != 3 {
		t.Fatalf("result = %+v", res)
	}
	for i, q := range a.Questions {
		if q.Order != i {
			t.Fatalf("question %d order = %d", i, q.Order)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			t.Fatalf("question %d answer out of range", i)
		}
	}
	if a.TimeLimit != model.DefaultTimeLimit || a.FileType != "txt" || a.FileSize == 0 {
		t.Fatalf("metadata = %+v", a)
	}
	if !strings.HasPrefix(a.FileURL, "/uploads/assessments/") {
		t.Fatalf("file url = %q", a.FileURL)
	}
	if storedFiles(t, env.storageDir) != 1 {
		t.Fatal("uploaded document was not stored")
	}

	if client.calls() != 1 {
		t.Fatalf("model calls = %d", client.calls())
	}
	if p := client.prompts[0]; !strings.Contains(p.User, "Generate 6 new multiple-choice questions") {
		t.Fatalf("prompt did not ask for buffered count:\n%s", p.User)
	}

	mine, err := env.assessments.ListMine(teacher.ID)
	if err != nil || len(mine) != 1 || len(mine[0].Questions) != 5 {
		t.Fatalf("ListMine = %v, %v", mine, err)
	}

	url, err := env.assessments.GetSourceURL(context.Background(), teacher.ID, a.ID)
	if err != nil || url != a.FileURL {
		t.Fatalf("GetSourceURL = %q, %v", url, err)
	}
}

func TestUploadUsesFallbackBank(t *testing.T) {
	client := &fakeLLM{err: errors.New("model unavailable")}
	bank := quizgen.NewYAMLFallbackBank([]quizgen.FallbackEntry{{
		Match: "chemistry",
		Questions: []quizgen.Question{
			{QuestionText: "Bank question one?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 1},
			{QuestionText: "Bank question two?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
		},
	}})
	env := newTestEnv(t, client, bank)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)

	res, err := env.assessments.Upload(context.Background(), uploadInput(teacher.ID, "Chemistry-Week2.txt", quizDocument(8)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.GenerationSource != quizgen.SourceFallback {
		t.Fatalf("source = %s", res.GenerationSource)
	}
	sources := countSources(res.Assessment.Questions)
	if len(res.Assessment.Questions) != 4 || sources[model.SourceFallback] != 2 {
		t.Fatalf("sources = %v (total %d)", sources, len(res.Assessment.Questions))
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a fallback warning")
	}
}

func TestUploadWithoutModelOrFallbackKeepsOriginals(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{err: errors.New("boom")}, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)

	res, err := env.assessments.Upload(context.Background(), uploadInput(teacher.ID, "physics.txt", quizDocument(6)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.GenerationSource != quizgen.SourceNone {
		t.Fatalf("source = %s", res.GenerationSource)
	}
	if n := len(res.Assessment.Questions); n != 3 || countSources(res.Assessment.Questions)[model.SourceOriginal] != 3 {
		t.Fatalf("questions = %d", n)
	}
}

func TestUploadThrottlingExhaustedIsTerminal(t *testing.T) {
	client := &fakeLLM{err: fmt.Errorf("bedrock: %w", llm.ErrThrottled)}
	env := newTestEnv(t, client, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)

	_, err := env.assessments.Upload(context.Background(), uploadInput(teacher.ID, "chem.txt", quizDocument(6)))
	if !errors.Is(err, util.ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
	if client.calls() != 3 {
		t.Fatalf("model calls = %d, want 3", client.calls())
	}
	var n int64
	env.db.Model(&model.Assessment{}).Count(&n)
	if n != 0 || storedFiles(t, env.storageDir) != 0 {
		t.Fatalf("nothing should be persisted: assessments=%d", n)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: generatedReply}, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)

	cases := []struct {
		name  string
		input UploadInput
		want  error
	}{
		{"extension", uploadInput(teacher.ID, "quiz.docx", quizDocument(4)), util.ErrValidation},
		{"empty file", uploadInput(teacher.ID, "quiz.txt", nil), util.ErrValidation},
		{"missing subject", func() UploadInput {
			in := uploadInput(teacher.ID, "quiz.txt", quizDocument(4))
			in.Subject = " "
			return in
		}(), util.ErrValidation},
		{"no questions", uploadInput(teacher.ID, "notes.txt", []byte("just some lecture notes\nwithout questions")), util.ErrParse},
		{"binary", uploadInput(teacher.ID, "quiz.pdf", []byte{0x00, 0x01, 0x02, 0xff}), util.ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.assessments.Upload(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if storedFiles(t, env.storageDir) != 0 {
		t.Fatal("rejected uploads must not be stored")
	}
}

func TestSubmitScoresOnceOnly(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, env.db, "s@example.com", model.Student, model.StatusApproved)
	a := testutil.CreateAssessment(t, env.db, teacher.ID, "Chemistry", 4)

	in := SubmitInput{
		TimeTaken: 120,
		Answers: []AnswerInput{
			{QuestionID: a.Questions[0].ID, SelectedOption: 0},
			{QuestionID: a.Questions[1].ID, SelectedOption: 0},
			{QuestionID: a.Questions[2].ID, SelectedOption: 0},
		},
	}
	res, err := env.assessments.Submit(context.Background(), a.ID, student.ID, model.Student, in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 2 || res.TotalMarks != 4 || res.Percentage != 50 || res.TimeTaken != 120 {
		t.Fatalf("result = %+v", res)
	}

	_, err = env.assessments.Submit(context.Background(), a.ID, student.ID, model.Student, in)
	if !errors.Is(err, util.ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v", err)
	}
	if util.StatusFor(err) != 400 {
		t.Fatalf("status = %d", util.StatusFor(err))
	}
	var n int64
	env.db.Model(&model.Submission{}).Count(&n)
	if n != 1 {
		t.Fatalf("submissions = %d, want 1", n)
	}

	mine, err := env.assessments.ListMySubmissions(student.ID)
	if err != nil || len(mine) != 1 || mine[0].Assessment == nil {
		t.Fatalf("ListMySubmissions = %v, %v", mine, err)
	}
	subs, err := env.assessments.ListSubmissions(teacher.ID, a.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("ListSubmissions = %v, %v", subs, err)
	}

	list, err := env.assessments.ListAll(student.ID)
	if err != nil || len(list) != 1 || !list[0].Submitted || list[0].QuestionCount != 4 {
		t.Fatalf("ListAll = %+v, %v", list, err)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, env.db, "s@example.com", model.Student, model.StatusApproved)
	a := testutil.CreateAssessment(t, env.db, teacher.ID, "Chemistry", 2)
	q := a.Questions[0].ID

	cases := []struct {
		name string
		id   uint
		role model.UserRole
		in   SubmitInput
		want error
	}{
		{"teacher", a.ID, model.Teacher, SubmitInput{}, util.ErrPermissionDenied},
		{"unknown assessment", 999, model.Student, SubmitInput{}, util.ErrNotFound},
		{"option out of range", a.ID, model.Student, SubmitInput{Answers: []AnswerInput{{QuestionID: q, SelectedOption: 2}}}, util.ErrValidation},
		{"foreign question", a.ID, model.Student, SubmitInput{Answers: []AnswerInput{{QuestionID: 999}}}, util.ErrValidation},
		{"answered twice", a.ID, model.Student, SubmitInput{Answers: []AnswerInput{{QuestionID: q}, {QuestionID: q}}}, util.ErrValidation},
		{"negative time", a.ID, model.Student, SubmitInput{TimeTaken: -1}, util.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.assessments.Submit(context.Background(), tc.id, student.ID, tc.role, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAttemptViewHidesAnswers(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)
	a := testutil.CreateAssessment(t, env.db, teacher.ID, "Biology", 3)

	view, err := env.assessments.GetForAttempt(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetForAttempt: %v", err)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("questions = %d", len(view.Questions))
	}
	raw, _ := json.Marshal(view)
	if strings.Contains(string(raw), "correctAnswer") {
		t.Fatalf("attempt view leaks answers: %s", raw)
	}

	if _, err := env.assessments.GetForAttempt(context.Background(), 4242); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("missing assessment err = %v", err)
	}
}

func TestDeleteIsOwnerOnlyAndCascades(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{reply: generatedReply}, nil)
	owner := testutil.CreateUser(t, env.db, "owner@example.com", model.Teacher, model.StatusApproved)
	other := testutil.CreateUser(t, env.db, "other@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, env.db, "s@example.com", model.Student, model.StatusApproved)

	res, err := env.assessments.Upload(context.Background(), uploadInput(owner.ID, "chem.txt", quizDocument(4)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	a := res.Assessment
	if _, err := env.assessments.Submit(context.Background(), a.ID, student.ID, model.Student,
		SubmitInput{Answers: []AnswerInput{{QuestionID: a.Questions[0].ID, SelectedOption: 1}}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := env.assessments.Delete(context.Background(), other.ID, a.ID); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("non-owner delete err = %v", err)
	}
	if _, err := env.assessments.GetSourceURL(context.Background(), other.ID, a.ID); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("non-owner source err = %v", err)
	}

	if err := env.assessments.Delete(context.Background(), owner.ID, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var n int64
	env.db.Model(&model.Submission{}).Count(&n)
	if n != 0 {
		t.Fatalf("submissions left = %d", n)
	}
	if storedFiles(t, env.storageDir) != 0 {
		t.Fatal("stored document not removed")
	}
	if err := env.assessments.Delete(context.Background(), owner.ID, a.ID); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestRequestCount(t *testing.T) {
	cases := []struct{ target, limit, want int }{
		{0, 10, 0},
		{1, 10, 2},
		{4, 10, 6},
		{7, 10, 10},
		{7, 0, 11},
	}
	for _, tc := range cases {
		if got := requestCount(tc.target, tc.limit); got != tc.want {
			t.Errorf("requestCount(%d, %d) = %d, want %d", tc.target, tc.limit, got, tc.want)
		}
	}
}

func TestListGenerationLogsIsOwnerOnly(t *testing.T) {
	client := &fakeLLM{reply: generatedReply}
	env := newTestEnv(t, client, nil)
	logs := &memoryLogs{}
	env.assessments.GenerationLogs = logs
	teacher := testutil.CreateUser(t, env.db, "t@example.com", model.Teacher, model.StatusApproved)
	other := testutil.CreateUser(t, env.db, "o@example.com", model.Teacher, model.StatusApproved)

	res, err := env.assessments.Upload(context.Background(), uploadInput(teacher.ID, "quiz.txt", quizDocument(10)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, err := env.assessments.ListGenerationLogs(context.Background(), teacher.ID, res.Assessment.ID)
	if err != nil {
		t.Fatalf("ListGenerationLogs: %v", err)
	}
	if len(got) != 1 || got[0].Kind != model.GenerationKindQuestions || got[0].RawReply != generatedReply {
		t.Fatalf("logs = %+v", got)
	}

	if _, err := env.assessments.ListGenerationLogs(context.Background(), other.ID, res.Assessment.ID); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("foreign teacher err = %v", err)
	}
}
