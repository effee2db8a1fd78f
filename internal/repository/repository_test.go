package repository

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/testutil"
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserRepositoryApprovals(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)

	testutil.CreateUser(t, db, "p1@example.com", model.Teacher, model.StatusPending)
	p2 := testutil.CreateUser(t, db, "p2@example.com", model.Teacher, model.StatusPending)
	testutil.CreateUser(t, db, "s@example.com", model.Student, model.StatusApproved)

	if err := repo.UpdateStatus(p2.ID, model.StatusRejected, "incomplete profile"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	pending, err := repo.ListByRoleAndStatus(model.Teacher, model.StatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	all, err := repo.ListByRoleAndStatus(model.Teacher, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("all teachers = %d, %v", len(all), err)
	}

	counts, err := repo.CountByStatus(model.Teacher)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusPending] != 1 || counts[model.StatusRejected] != 1 || counts[model.StatusApproved] != 0 {
		t.Fatalf("counts = %v", counts)
	}

	rejected, _ := repo.FindByID(p2.ID)
	if rejected.RejectionReason != "incomplete profile" {
		t.Fatalf("reason = %q", rejected.RejectionReason)
	}
}

func TestAssessmentRepositoryDeleteCascade(t *testing.T) {
	db := testutil.NewDB(t)
	teacher := testutil.CreateUser(t, db, "t@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, db, "s@example.com", model.Student, model.StatusApproved)
	a := testutil.CreateAssessment(t, db, teacher.ID, "Chemistry", 3)
	other := testutil.CreateAssessment(t, db, teacher.ID, "Physics", 2)

	repo := NewAssessmentRepository(db)
	subs := NewSubmissionRepository(db)
	fbs := NewFeedbackRepository(db)

	sub := &model.Submission{
		AssessmentID: a.ID,
		StudentID:    student.ID,
		Answers:      []model.SubmissionAnswer{{QuestionID: a.Questions[0].ID, SelectedOption: 0, IsCorrect: true, MarksObtained: 1}},
		Score:        1,
		TotalMarks:   3,
		SubmittedAt:  time.Now(),
	}
	if err := subs.Create(sub); err != nil {
		t.Fatalf("create submission: %v", err)
	}
	if err := fbs.Create(&model.Feedback{StudentID: student.ID, AssessmentID: a.ID, FeedbackText: "{}"}); err != nil {
		t.Fatalf("create feedback: %v", err)
	}

	loaded, err := repo.FindWithQuestions(a.ID)
	if err != nil || len(loaded.Questions) != 3 || loaded.Questions[2].Order != 2 {
		t.Fatalf("FindWithQuestions = %+v, %v", loaded, err)
	}

	if err := repo.DeleteCascade(a.ID); err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}

	var n int64
	db.Model(&model.SubmissionAnswer{}).Count(&n)
	if n != 0 {
		t.Fatalf("answers left: %d", n)
	}
	db.Model(&model.Submission{}).Count(&n)
	if n != 0 {
		t.Fatalf("submissions left: %d", n)
	}
	db.Model(&model.Feedback{}).Count(&n)
	if n != 0 {
		t.Fatalf("feedback left: %d", n)
	}
	db.Model(&model.AssessmentQuestion{}).Where("assessment_id = ?", a.ID).Count(&n)
	if n != 0 {
		t.Fatalf("questions left: %d", n)
	}
	if _, err := repo.FindByID(other.ID); err != nil {
		t.Fatalf("unrelated assessment removed: %v", err)
	}
}

func TestSubmissionRepositoryUniquePerStudent(t *testing.T) {
	db := testutil.NewDB(t)
	teacher := testutil.CreateUser(t, db, "t@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, db, "s@example.com", model.Student, model.StatusApproved)
	a := testutil.CreateAssessment(t, db, teacher.ID, "Chemistry", 1)
	repo := NewSubmissionRepository(db)

	first := &model.Submission{AssessmentID: a.ID, StudentID: student.ID, SubmittedAt: time.Now()}
	if err := repo.Create(first); err != nil {
		t.Fatalf("first create: %v", err)
	}
	exists, err := repo.Exists(a.ID, student.ID)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}

	second := &model.Submission{AssessmentID: a.ID, StudentID: student.ID, SubmittedAt: time.Now()}
	if err := repo.Create(second); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestSubmissionRepositoryRecentInSubject(t *testing.T) {
	db := testutil.NewDB(t)
	teacher := testutil.CreateUser(t, db, "t@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, db, "s@example.com", model.Student, model.StatusApproved)
	repo := NewSubmissionRepository(db)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var (
		current *model.Submission
		a       *model.Assessment
	)
	for i := 0; i < 7; i++ {
		a = testutil.CreateAssessment(t, db, teacher.ID, "Chemistry", 1)
		s := &model.Submission{AssessmentID: a.ID, StudentID: student.ID, Percentage: float64(i * 10), SubmittedAt: base.AddDate(0, 0, i)}
		if err := repo.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
		current = s
	}
	physics := testutil.CreateAssessment(t, db, teacher.ID, "Physics", 1)
	if err := repo.Create(&model.Submission{AssessmentID: physics.ID, StudentID: student.ID, SubmittedAt: base.AddDate(0, 1, 0)}); err != nil {
		t.Fatalf("create physics: %v", err)
	}

	history, err := repo.RecentInSubject(student.ID, a.ID, current.ID, 5)
	if err != nil {
		t.Fatalf("RecentInSubject: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("history len = %d", len(history))
	}
	if history[0].Percentage != 50 || history[4].Percentage != 10 {
		t.Fatalf("unexpected order: %v, %v", history[0].Percentage, history[4].Percentage)
	}
	for _, h := range history {
		if h.ID == current.ID {
			t.Fatal("current submission included in history")
		}
	}
}

func TestAttemptCacheNilSafe(t *testing.T) {
	var cache *AttemptCache
	ctx := context.Background()
	cache.Set(ctx, &model.AttemptView{ID: 1})
	if _, ok := cache.Get(ctx, 1); ok {
		t.Fatal("nil cache returned a hit")
	}
	cache.Invalidate(ctx, 1)

	cache = NewAttemptCache(nil, time.Minute)
	if _, ok := cache.Get(ctx, 1); ok {
		t.Fatal("cache without redis returned a hit")
	}
}
