package repository

import (
	"assessment_backend/internal/model"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrDuplicateSubmission (assessment_id, student_id) 唯一索引冲突
var ErrDuplicateSubmission = errors.New("duplicate submission")

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Exists(assessmentID, studentID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Submission{}).
		Where("assessment_id = ? AND student_id = ?", assessmentID, studentID).
		Count(&count).Error
	return count > 0, err
}

// Create 提交记录与答题明细一并写入，唯一索引冲突返回 ErrDuplicateSubmission
func (r *SubmissionRepository) Create(submission *model.Submission) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(submission).Error
	})
	if isDuplicateKey(err) {
		return ErrDuplicateSubmission
	}
	return err
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

func (r *SubmissionRepository) FindByID(id uint) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.Preload("Answers").Preload("Student").First(&s, id).Error
	return &s, err
}

func (r *SubmissionRepository) ListByAssessment(assessmentID uint) ([]model.Submission, error) {
	var list []model.Submission
	err := r.DB.Preload("Student").
		Where("assessment_id = ?", assessmentID).
		Order("submitted_at desc").
		Find(&list).Error
	return list, err
}

func (r *SubmissionRepository) ListByStudent(studentID uint) ([]model.Submission, error) {
	var list []model.Submission
	err := r.DB.Preload("Assessment").
		Where("student_id = ?", studentID).
		Order("submitted_at desc").
		Find(&list).Error
	return list, err
}

// RecentInSubject 同一学生在该测验所属科目下的最近提交，排除 excludeID
func (r *SubmissionRepository) RecentInSubject(studentID, assessmentID, excludeID uint, limit int) ([]model.Submission, error) {
	subject := r.DB.Model(&model.Assessment{}).Select("subject").Where("id = ?", assessmentID)
	var list []model.Submission
	err := r.DB.Select("submissions.*").
		Joins("JOIN assessments ON assessments.id = submissions.assessment_id").
		Where("submissions.student_id = ? AND submissions.id <> ?", studentID, excludeID).
		Where("assessments.subject = (?)", subject).
		Order("submissions.submitted_at desc").
		Limit(limit).
		Find(&list).Error
	return list, err
}
