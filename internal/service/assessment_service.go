package service

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/internal/quizgen"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/llm"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/tracing"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UploadInput struct {
	TeacherID      uint
	AssessmentName string
	Subject        string
	GradeLevel     string
	TimeLimit      int
	Filename       string
	ContentType    string
	Data           []byte
}

type UploadResult struct {
	Assessment       *model.Assessment    `json:"assessment"`
	OriginalCount    int                  `json:"originalCount"`
	GeneratedCount   int                  `json:"generatedCount"`
	GenerationSource quizgen.Source       `json:"generationSource"`
	Skipped          []quizgen.SkipReason `json:"skipped,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
}

// AssessmentSummary 学生端测验列表项
type AssessmentSummary struct {
	ID             uint      `json:"id"`
	AssessmentName string    `json:"assessmentName"`
	Subject        string    `json:"subject"`
	GradeLevel     string    `json:"gradeLevel"`
	TimeLimit      int       `json:"timeLimit"`
	QuestionCount  int       `json:"questionCount"`
	TeacherName    string    `json:"teacherName"`
	Submitted      bool      `json:"submitted"`
	CreatedAt      time.Time `json:"createdAt"`
}

type AnswerInput struct {
	QuestionID     uint `json:"questionId" binding:"required"`
	SelectedOption int  `json:"selectedOption"`
}

type SubmitInput struct {
	Answers   []AnswerInput `json:"answers"`
	TimeTaken int           `json:"timeTaken"` // Seconds
}

type AssessmentService struct {
	Repo           *repository.AssessmentRepository
	SubmissionRepo *repository.SubmissionRepository
	Storage        *StorageService
	Cache          *repository.AttemptCache
	GenerationLogs repository.GenerationLogRepository
	Augmenter      *quizgen.Augmenter
	UploadCfg      config.UploadConfig

	// NewRand 每次上传使用的随机源，测试中可替换为固定种子
	NewRand func() *rand.Rand

	mu         sync.RWMutex
	generation config.GenerationConfig
}

func NewAssessmentService(
	repo *repository.AssessmentRepository,
	submissionRepo *repository.SubmissionRepository,
	storage *StorageService,
	cache *repository.AttemptCache,
	generationLogs repository.GenerationLogRepository,
	augmenter *quizgen.Augmenter,
	cfg *config.Config,
) *AssessmentService {
	return &AssessmentService{
		Repo:           repo,
		SubmissionRepo: submissionRepo,
		Storage:        storage,
		Cache:          cache,
		GenerationLogs: generationLogs,
		Augmenter:      augmenter,
		UploadCfg:      cfg.Upload,
		NewRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		generation: cfg.Generation,
	}
}

// UpdateGeneration 配置热更新时替换生成策略与备用题库
func (s *AssessmentService) UpdateGeneration(gen config.GenerationConfig, opts quizgen.AugmenterOptions) {
	s.mu.Lock()
	s.generation = gen
	s.mu.Unlock()
	s.Augmenter.SetOptions(opts)
}

func (s *AssessmentService) generationConfig() config.GenerationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *AssessmentService) validateUpload(in *UploadInput) error {
	in.AssessmentName = strings.TrimSpace(in.AssessmentName)
	in.Subject = strings.TrimSpace(in.Subject)
	in.GradeLevel = strings.TrimSpace(in.GradeLevel)

	switch {
	case in.TeacherID == 0:
		return util.ErrPermissionDenied
	case in.AssessmentName == "":
		return util.Validationf("assessmentName is required")
	case in.Subject == "":
		return util.Validationf("subject is required")
	case in.GradeLevel == "":
		return util.Validationf("gradeLevel is required")
	case in.TimeLimit < 0:
		return util.Validationf("timeLimit must not be negative")
	case len(in.Data) == 0:
		return util.Validationf("file is empty")
	}
	if limit := s.UploadCfg.MaxBytes(); limit > 0 && int64(len(in.Data)) > limit {
		return util.Validationf("file exceeds the %d MB limit", s.UploadCfg.MaxSizeMB)
	}
	if len(s.UploadCfg.AllowedExtensions) > 0 && !util.HasAllowedExtension(in.Filename, s.UploadCfg.AllowedExtensions) {
		return util.Validationf("file type %q is not allowed", filepath.Ext(in.Filename))
	}

	if in.TimeLimit == 0 {
		in.TimeLimit = model.DefaultTimeLimit
	}
	if in.ContentType == "" {
		in.ContentType = util.DetectMimeType(in.Data[:min(512, len(in.Data))])
	}
	return nil
}

// requestCount 向模型多要一些题目以抵消格式不合格被丢弃的部分
func requestCount(target, limit int) int {
	if target <= 0 {
		return 0
	}
	n := target + (target+1)/2
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// Upload 解析上传文档，抽样原题并混入生成题后保存为新测验
func (s *AssessmentService) Upload(ctx context.Context, in UploadInput) (result *UploadResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "assessment.upload",
		attribute.String("file.name", in.Filename),
		attribute.Int("file.size", len(in.Data)))
	defer func() { tracing.EndSpan(span, err) }()

	if err = s.validateUpload(&in); err != nil {
		return nil, err
	}

	text, err := quizgen.Extract(in.Filename, in.Data)
	if err != nil {
		return nil, err
	}

	seg := quizgen.Segment(text)
	monitoring.ObserveQuestions("segment", "parsed", len(seg.Questions))
	monitoring.ObserveQuestions("segment", "skipped", len(seg.Skipped))
	if len(seg.Questions) == 0 {
		return nil, fmt.Errorf("%w (%d block(s) skipped)", util.ErrNoQuestions, len(seg.Skipped))
	}

	var warnings []string
	if len(seg.Skipped) > 0 {
		warnings = append(warnings, fmt.Sprintf("skipped %d question(s) that could not be parsed", len(seg.Skipped)))
		logger.Log.Warn("questions skipped during segmentation",
			zap.String("file", in.Filename),
			zap.Int("parsed", len(seg.Questions)),
			zap.Int("skipped", len(seg.Skipped)))
	}

	d := quizgen.DesiredCount(len(seg.Questions))
	sample := quizgen.Sample(seg.Questions, d, s.NewRand())
	if sample.UsedDuplicates {
		warnings = append(warnings, fmt.Sprintf("document has only %d unique question(s); some were repeated", sample.UniqueCount))
		logger.Log.Warn("sampler filled with duplicate questions",
			zap.String("file", in.Filename),
			zap.Int("unique", sample.UniqueCount),
			zap.Int("desired", d))
	}

	gen := s.generationConfig()
	target := quizgen.AITarget(d, gen.AIShare)
	count := requestCount(target, gen.GenerateCount)
	aug, err := s.Augmenter.Generate(ctx, quizgen.GenerateRequest{
		Filename:  in.Filename,
		Subject:   in.Subject,
		Originals: sample.Questions,
		Count:     count,
	})
	if count > 0 {
		monitoring.ObserveModelCall(s.provider(), "questions", modelOutcome(aug.Source, err))
	}
	if err != nil {
		s.saveLog(ctx, &model.GenerationLog{
			Kind:     model.GenerationKindQuestions,
			UserID:   in.TeacherID,
			Filename: in.Filename,
			Provider: s.provider(),
			Skipped:  skipStrings(seg.Skipped),
			Error:    err.Error(),
		})
		return nil, err
	}
	warnings = append(warnings, aug.Warnings...)
	monitoring.ObserveQuestions("generate", "accepted", len(aug.Questions))
	monitoring.ObserveQuestions("generate", "dropped", aug.Dropped)
	if aug.Source != quizgen.SourceModel {
		monitoring.FallbackUses.WithLabelValues(string(aug.Source)).Inc()
	}

	combined := quizgen.Combine(sample.Questions, aug.Questions, d, gen.AIShare)
	if combined.Collisions > 0 {
		warnings = append(warnings, fmt.Sprintf("discarded %d generated question(s) that repeated existing ones", combined.Collisions))
	}
	monitoring.ObserveQuestions("combine", "original", len(combined.Questions)-combined.AITaken)
	monitoring.ObserveQuestions("combine", "generated", combined.AITaken)

	key := fmt.Sprintf("assessments/%d/%s%s", in.TeacherID, uuid.NewString(), strings.ToLower(filepath.Ext(in.Filename)))
	fileURL, err := s.Storage.Upload(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: store document: %w", util.ErrExternalService, err)
	}

	assessment := &model.Assessment{
		TeacherID:      in.TeacherID,
		AssessmentName: in.AssessmentName,
		Subject:        in.Subject,
		GradeLevel:     in.GradeLevel,
		TimeLimit:      in.TimeLimit,
		FileKey:        key,
		FileURL:        fileURL,
		FileType:       util.FileType(in.Filename),
		FileSize:       int64(len(in.Data)),
		Questions:      toModelQuestions(combined, aug.Source),
	}
	if err = s.Repo.Create(assessment); err != nil {
		if delErr := s.Storage.Delete(ctx, key); delErr != nil {
			logger.Log.Warn("failed to remove orphaned document", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.saveLog(ctx, &model.GenerationLog{
		Kind:         model.GenerationKindQuestions,
		UserID:       in.TeacherID,
		AssessmentID: assessment.ID,
		Filename:     in.Filename,
		Provider:     s.provider(),
		Source:       string(aug.Source),
		RawReply:     aug.RawReply,
		Skipped:      skipStrings(seg.Skipped),
		Warnings:     warnings,
	})

	logger.Log.Info("assessment uploaded",
		zap.Uint("assessmentID", assessment.ID),
		zap.Uint("teacherID", in.TeacherID),
		zap.Int("questions", len(assessment.Questions)),
		zap.Int("generated", combined.AITaken),
		zap.String("source", string(aug.Source)))

	return &UploadResult{
		Assessment:       assessment,
		OriginalCount:    len(combined.Questions) - combined.AITaken,
		GeneratedCount:   combined.AITaken,
		GenerationSource: aug.Source,
		Skipped:          seg.Skipped,
		Warnings:         warnings,
	}, nil
}

func toModelQuestions(combined quizgen.CombineResult, source quizgen.Source) []model.AssessmentQuestion {
	aiSource := model.SourceAI
	if source == quizgen.SourceFallback {
		aiSource = model.SourceFallback
	}
	originals := len(combined.Questions) - combined.AITaken

	out := make([]model.AssessmentQuestion, 0, len(combined.Questions))
	for i, q := range combined.Questions {
		src := model.SourceOriginal
		if i >= originals {
			src = aiSource
		}
		marks := q.Marks
		if marks <= 0 {
			marks = 1
		}
		out = append(out, model.AssessmentQuestion{
			QuestionText:  q.QuestionText,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.CorrectAnswer,
			Marks:         marks,
			Topic:         q.Topic,
			Source:        src,
			Order:         i,
		})
	}
	return out
}

// modelOutcome 备用题库被使用说明模型调用失败
func modelOutcome(source quizgen.Source, err error) string {
	switch {
	case llm.IsThrottled(err):
		return "throttled"
	case err != nil, source != quizgen.SourceModel:
		return "error"
	}
	return "ok"
}

func skipStrings(skipped []quizgen.SkipReason) []string {
	out := make([]string, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, s.String())
	}
	return out
}

func (s *AssessmentService) provider() string {
	if s.Augmenter == nil {
		return ""
	}
	return s.Augmenter.Provider()
}

// saveLog 生成日志写入失败不影响主流程
func (s *AssessmentService) saveLog(ctx context.Context, entry *model.GenerationLog) {
	if s.GenerationLogs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.GenerationLogs.Save(ctx, entry); err != nil {
		logger.Log.Warn("failed to save generation log", zap.Error(err))
	}
}

func (s *AssessmentService) ListMine(teacherID uint) ([]model.Assessment, error) {
	return s.Repo.ListByTeacher(teacherID)
}

// ListAll 标记当前学生已提交过的测验
func (s *AssessmentService) ListAll(studentID uint) ([]AssessmentSummary, error) {
	list, err := s.Repo.ListAll()
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	counts, err := s.Repo.CountQuestions(ids)
	if err != nil {
		return nil, err
	}

	submitted := make(map[uint]bool)
	if studentID != 0 {
		subs, err := s.SubmissionRepo.ListByStudent(studentID)
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			submitted[sub.AssessmentID] = true
		}
	}

	out := make([]AssessmentSummary, 0, len(list))
	for _, a := range list {
		summary := AssessmentSummary{
			ID:             a.ID,
			AssessmentName: a.AssessmentName,
			Subject:        a.Subject,
			GradeLevel:     a.GradeLevel,
			TimeLimit:      a.TimeLimit,
			QuestionCount:  counts[a.ID],
			Submitted:      submitted[a.ID],
			CreatedAt:      a.CreatedAt,
		}
		if a.Teacher != nil {
			summary.TeacherName = a.Teacher.Name
		}
		out = append(out, summary)
	}
	return out, nil
}

// findOwned 测验不存在返回 ErrAssessmentMissing，非本人测验返回 ErrPermissionDenied
func (s *AssessmentService) findOwned(teacherID, id uint) (*model.Assessment, error) {
	a, err := s.Repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentMissing
		}
		return nil, err
	}
	if a.TeacherID != teacherID {
		return nil, util.ErrPermissionDenied
	}
	return a, nil
}

// Delete 级联删除提交记录与评语，并移除存储中的原始文档
func (s *AssessmentService) Delete(ctx context.Context, teacherID, id uint) error {
	a, err := s.findOwned(teacherID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteCascade(id); err != nil {
		return err
	}
	s.Cache.Invalidate(ctx, id)

	if a.FileKey != "" {
		if err := s.Storage.Delete(ctx, a.FileKey); err != nil {
			logger.Log.Warn("failed to delete stored document",
				zap.Uint("assessmentID", id),
				zap.String("key", a.FileKey),
				zap.Error(err))
		}
	}

	logger.Log.Info("assessment deleted", zap.Uint("assessmentID", id), zap.Uint("teacherID", teacherID))
	return nil
}

// GetForAttempt 返回不含正确答案的作答视图
func (s *AssessmentService) GetForAttempt(ctx context.Context, id uint) (*model.AttemptView, error) {
	if view, ok := s.Cache.Get(ctx, id); ok {
		return view, nil
	}

	a, err := s.Repo.FindWithQuestions(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentMissing
		}
		return nil, err
	}

	view := a.AttemptView()
	s.Cache.Set(ctx, view)
	return view, nil
}

// Submit 评分并保存学生作答，同一学生对同一测验只能提交一次
func (s *AssessmentService) Submit(ctx context.Context, assessmentID, studentID uint, role model.UserRole, in SubmitInput) (*model.SubmissionResult, error) {
	if role != model.Student {
		return nil, fmt.Errorf("%w: only students can submit assessments", util.ErrPermissionDenied)
	}
	if in.TimeTaken < 0 {
		return nil, util.Validationf("timeTaken must not be negative")
	}

	a, err := s.Repo.FindWithQuestions(assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentMissing
		}
		return nil, err
	}

	exists, err := s.SubmissionRepo.Exists(assessmentID, studentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrAlreadySubmitted
	}

	submission, err := grade(a, in)
	if err != nil {
		return nil, err
	}
	submission.StudentID = studentID
	submission.SubmittedAt = time.Now()

	if err := s.SubmissionRepo.Create(submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, util.ErrAlreadySubmitted
		}
		return nil, err
	}

	logger.Log.Info("assessment submitted",
		zap.Uint("assessmentID", assessmentID),
		zap.Uint("studentID", studentID),
		zap.Int("score", submission.Score),
		zap.Int("total", submission.TotalMarks))

	return &model.SubmissionResult{
		SubmissionID: submission.ID,
		Score:        submission.Score,
		TotalMarks:   submission.TotalMarks,
		Percentage:   submission.Percentage,
		TimeTaken:    submission.TimeTaken,
	}, nil
}

// grade 未作答的题目计入总分但不得分
func grade(a *model.Assessment, in SubmitInput) (*model.Submission, error) {
	byID := make(map[uint]*model.AssessmentQuestion, len(a.Questions))
	for i := range a.Questions {
		byID[a.Questions[i].ID] = &a.Questions[i]
	}

	sub := &model.Submission{
		AssessmentID: a.ID,
		TotalMarks:   a.TotalMarks(),
		TimeTaken:    in.TimeTaken,
	}
	answered := make(map[uint]bool, len(in.Answers))
	for _, ans := range in.Answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			return nil, util.Validationf("question %d does not belong to this assessment", ans.QuestionID)
		}
		if answered[ans.QuestionID] {
			return nil, util.Validationf("question %d answered more than once", ans.QuestionID)
		}
		if ans.SelectedOption < 0 || ans.SelectedOption >= len(q.Options) {
			return nil, util.Validationf("selectedOption %d out of range for question %d", ans.SelectedOption, ans.QuestionID)
		}
		answered[ans.QuestionID] = true

		correct := ans.SelectedOption == q.CorrectAnswer
		marks := 0
		if correct {
			marks = q.Marks
		}
		sub.Score += marks
		sub.Answers = append(sub.Answers, model.SubmissionAnswer{
			QuestionID:     q.ID,
			SelectedOption: ans.SelectedOption,
			IsCorrect:      correct,
			MarksObtained:  marks,
		})
	}
	sub.Percentage = math.Round(util.Percentage(sub.Score, sub.TotalMarks)*100) / 100
	return sub, nil
}

func (s *AssessmentService) ListSubmissions(teacherID, assessmentID uint) ([]model.Submission, error) {
	if _, err := s.findOwned(teacherID, assessmentID); err != nil {
		return nil, err
	}
	return s.SubmissionRepo.ListByAssessment(assessmentID)
}

const generationLogLimit = 20

// ListGenerationLogs 最近的模型调用记录，未配置 MongoDB 时返回空列表
func (s *AssessmentService) ListGenerationLogs(ctx context.Context, teacherID, assessmentID uint) ([]model.GenerationLog, error) {
	if _, err := s.findOwned(teacherID, assessmentID); err != nil {
		return nil, err
	}
	if s.GenerationLogs == nil {
		return []model.GenerationLog{}, nil
	}
	logs, err := s.GenerationLogs.ListByAssessment(ctx, assessmentID, generationLogLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: generation logs: %w", util.ErrExternalService, err)
	}
	return logs, nil
}

func (s *AssessmentService) ListMySubmissions(studentID uint) ([]model.Submission, error) {
	return s.SubmissionRepo.ListByStudent(studentID)
}

// GetSourceURL 原始文档的限时下载链接
func (s *AssessmentService) GetSourceURL(ctx context.Context, teacherID, id uint) (string, error) {
	a, err := s.findOwned(teacherID, id)
	if err != nil {
		return "", err
	}
	if a.FileKey == "" {
		return "", fmt.Errorf("source document %w", util.ErrNotFound)
	}
	url, err := s.Storage.PresignedURL(ctx, a.FileKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign document url: %w", util.ErrExternalService, err)
	}
	return url, nil
}
