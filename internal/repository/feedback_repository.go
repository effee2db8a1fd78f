package repository

import (
	"assessment_backend/internal/model"

	"gorm.io/gorm"
)

type FeedbackRepository struct {
	DB *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{DB: db}
}

func (r *FeedbackRepository) Create(fb *model.Feedback) error {
	return r.DB.Create(fb).Error
}

func (r *FeedbackRepository) ListAll() ([]model.Feedback, error) {
	var list []model.Feedback
	err := r.DB.Preload("Student").Preload("Assessment").
		Order("created_at desc").
		Find(&list).Error
	return list, err
}

func (r *FeedbackRepository) ListByStudent(studentID uint) ([]model.Feedback, error) {
	var list []model.Feedback
	err := r.DB.Preload("Assessment").
		Where("student_id = ?", studentID).
		Order("created_at desc").
		Find(&list).Error
	return list, err
}
