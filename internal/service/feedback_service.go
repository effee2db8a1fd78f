package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/quizgen"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/llm"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const feedbackHistoryLimit = 5

type GenerateFeedbackInput struct {
	StudentID    uint `json:"studentId"`
	SubmissionID uint `json:"submissionId" binding:"required"`
}

// questionReview 提示词中每道题的作答情况
type questionReview struct {
	QuestionText   string   `json:"questionText"`
	Options        []string `json:"options"`
	SelectedOption *int     `json:"selectedOption"`
	CorrectAnswer  int      `json:"correctAnswer"`
	IsCorrect      bool     `json:"isCorrect"`
	Marks          int      `json:"marks"`
}

type historyPoint struct {
	Date    string  `json:"date"`
	Percent float64 `json:"percent"`
}

type FeedbackService struct {
	SubmissionRepo *repository.SubmissionRepository
	AssessmentRepo *repository.AssessmentRepository
	FeedbackRepo   *repository.FeedbackRepository
	GenerationLogs repository.GenerationLogRepository
	Client         llm.Client
	MaxTokens      int
}

func NewFeedbackService(
	submissionRepo *repository.SubmissionRepository,
	assessmentRepo *repository.AssessmentRepository,
	feedbackRepo *repository.FeedbackRepository,
	generationLogs repository.GenerationLogRepository,
	client llm.Client,
	maxTokens int,
) *FeedbackService {
	return &FeedbackService{
		SubmissionRepo: submissionRepo,
		AssessmentRepo: assessmentRepo,
		FeedbackRepo:   feedbackRepo,
		GenerationLogs: generationLogs,
		Client:         client,
		MaxTokens:      maxTokens,
	}
}

// Generate 为一次提交生成结构化评语。模型调用不重试，回复无法解析时返回 ErrModelOutput
func (s *FeedbackService) Generate(ctx context.Context, requester *util.Claims, in GenerateFeedbackInput) (view *model.FeedbackView, err error) {
	ctx, span := tracing.StartSpan(ctx, "feedback.generate",
		attribute.Int("submission.id", int(in.SubmissionID)))
	defer func() { tracing.EndSpan(span, err) }()

	if in.StudentID == 0 {
		in.StudentID = requester.UserID
	}
	if requester.Role == model.Student && in.StudentID != requester.UserID {
		return nil, fmt.Errorf("%w: feedback can only be requested for your own submissions", util.ErrPermissionDenied)
	}

	submission, err := s.SubmissionRepo.FindByID(in.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSubmissionMissing
		}
		return nil, err
	}
	if submission.StudentID != in.StudentID {
		return nil, util.Validationf("student / submission mismatch")
	}

	var (
		assessment *model.Assessment
		history    []model.Submission
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.AssessmentRepo.FindWithQuestions(submission.AssessmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrAssessmentMissing
			}
			return err
		}
		assessment = a
		return nil
	})
	g.Go(func() error {
		var err error
		history, err = s.SubmissionRepo.RecentInSubject(submission.StudentID, submission.AssessmentID, submission.ID, feedbackHistoryLimit)
		return err
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	if s.Client == nil {
		return nil, fmt.Errorf("%w: feedback model is not configured", util.ErrExternalService)
	}

	prompt := BuildFeedbackPrompt(submission, assessment, history)
	prompt.MaxTokens = s.MaxTokens
	reply, err := s.Client.Complete(ctx, prompt)
	if err != nil {
		outcome := "error"
		if llm.IsThrottled(err) {
			outcome = "throttled"
		}
		monitoring.ObserveModelCall(s.Client.Provider(), "feedback", outcome)
		s.saveLog(ctx, submission, "", err)
		return nil, fmt.Errorf("%w: feedback generation: %w", util.ErrExternalService, err)
	}
	monitoring.ObserveModelCall(s.Client.Provider(), "feedback", "ok")

	verdict, err := ParseFeedbackVerdict(reply)
	s.saveLog(ctx, submission, reply, err)
	if err != nil {
		logger.Log.Warn("feedback reply unparsable",
			zap.Uint("submissionID", submission.ID),
			zap.Int("replyLength", len(reply)))
		return nil, err
	}

	stored, err := json.Marshal(verdict)
	if err != nil {
		return nil, err
	}
	fb := &model.Feedback{
		StudentID:    submission.StudentID,
		AssessmentID: assessment.ID,
		SubmissionID: submission.ID,
		Topic:        assessment.AssessmentName,
		Score:        submission.Score,
		Total:        submission.TotalMarks,
		Percentage:   submission.Percentage,
		FeedbackText: string(stored),
	}
	if err = s.FeedbackRepo.Create(fb); err != nil {
		return nil, err
	}

	logger.Log.Info("feedback generated",
		zap.Uint("feedbackID", fb.ID),
		zap.Uint("studentID", fb.StudentID),
		zap.Uint("submissionID", fb.SubmissionID))

	return &model.FeedbackView{Feedback: *fb, FeedbackText: verdict}, nil
}

// ParseFeedbackVerdict 取回复中第一个完整的 JSON 对象
func ParseFeedbackVerdict(reply string) (*model.FeedbackVerdict, error) {
	obj, ok := quizgen.ExtractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in reply", util.ErrModelOutput)
	}
	var verdict model.FeedbackVerdict
	if err := json.Unmarshal([]byte(obj), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrModelOutput, err)
	}
	if strings.TrimSpace(verdict.OverallSummary) == "" {
		return nil, fmt.Errorf("%w: overallSummary missing", util.ErrModelOutput)
	}
	if verdict.TopicStrengths == nil {
		verdict.TopicStrengths = []string{}
	}
	if verdict.TopicWeaknesses == nil {
		verdict.TopicWeaknesses = []string{}
	}
	if verdict.NextSteps == nil {
		verdict.NextSteps = []model.NextStep{}
	}
	return &verdict, nil
}

func BuildFeedbackPrompt(sub *model.Submission, a *model.Assessment, history []model.Submission) llm.Prompt {
	selected := make(map[uint]int, len(sub.Answers))
	for _, ans := range sub.Answers {
		selected[ans.QuestionID] = ans.SelectedOption
	}
	reviews := make([]questionReview, 0, len(a.Questions))
	for _, q := range a.Questions {
		r := questionReview{
			QuestionText:  q.QuestionText,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
		}
		if opt, ok := selected[q.ID]; ok {
			r.SelectedOption = &opt
			r.IsCorrect = opt == q.CorrectAnswer
		}
		reviews = append(reviews, r)
	}

	points := make([]historyPoint, 0, len(history))
	for _, h := range history {
		points = append(points, historyPoint{
			Date:    h.SubmittedAt.Format(time.DateOnly),
			Percent: h.Percentage,
		})
	}

	questionsJSON, _ := json.MarshalIndent(reviews, "", "  ")
	historyJSON, _ := json.MarshalIndent(points, "", "  ")

	name, grade := "unknown", "unknown"
	if sub.Student != nil {
		name = sub.Student.Name
		if sub.Student.GradeLevel != "" {
			grade = sub.Student.GradeLevel
		}
	}
	duration := "unknown"
	if sub.TimeTaken > 0 {
		duration = (time.Duration(sub.TimeTaken) * time.Second).String()
	}

	var b strings.Builder
	b.WriteString("Task: Analyse the student's latest test and return constructive, actionable feedback in JSON.\n\n")
	b.WriteString("STUDENT METRICS\n")
	fmt.Fprintf(&b, "Name: %s\nGrade: %s\nAssessment: %s\nSubject: %s\n", name, grade, a.AssessmentName, a.Subject)
	fmt.Fprintf(&b, "Score: %d / %d\nPercentage: %.2f %%\nDuration: %s\n\n", sub.Score, sub.TotalMarks, sub.Percentage, duration)
	b.WriteString("QUESTION SET\n")
	b.WriteString("Assign a meaningful topic to each question and use it to identify topic strengths and weaknesses.\n")
	b.Write(questionsJSON)
	b.WriteString("\n\nPAST PERFORMANCE\n")
	b.Write(historyJSON)
	b.WriteString(`

OUTPUT FORMAT
Return exactly this JSON schema, nothing else:
{
  "overallSummary": "string",
  "topicStrengths": ["string"],
  "topicWeaknesses": ["string"],
  "nextSteps": [{"action": "string", "resource": "string"}]
}`)

	return llm.Prompt{
		System:      "You are an experienced high-school teacher.",
		User:        b.String(),
		Temperature: 0.4,
		TopP:        0.9,
	}
}

func (s *FeedbackService) saveLog(ctx context.Context, sub *model.Submission, reply string, cause error) {
	if s.GenerationLogs == nil {
		return
	}
	entry := &model.GenerationLog{
		Kind:         model.GenerationKindFeedback,
		UserID:       sub.StudentID,
		AssessmentID: sub.AssessmentID,
		SubmissionID: sub.ID,
		RawReply:     reply,
	}
	if s.Client != nil {
		entry.Provider = s.Client.Provider()
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.GenerationLogs.Save(ctx, entry); err != nil {
		logger.Log.Warn("failed to save generation log", zap.Error(err))
	}
}

func (s *FeedbackService) ListAll() ([]model.FeedbackView, error) {
	list, err := s.FeedbackRepo.ListAll()
	if err != nil {
		return nil, err
	}
	return views(list), nil
}

func (s *FeedbackService) ListForStudent(studentID uint) ([]model.FeedbackView, error) {
	list, err := s.FeedbackRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	return views(list), nil
}

func views(list []model.Feedback) []model.FeedbackView {
	out := make([]model.FeedbackView, 0, len(list))
	for _, fb := range list {
		out = append(out, fb.View())
	}
	return out
}
