package repository

import (
	"assessment_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order asc, id asc")
}

// Create 测验与题目在同一事务中写入
func (r *AssessmentRepository) Create(assessment *model.Assessment) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(assessment).Error
	})
}

func (r *AssessmentRepository) FindByID(id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.First(&a, id).Error
	return &a, err
}

func (r *AssessmentRepository) FindWithQuestions(id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.Preload("Questions", orderedQuestions).First(&a, id).Error
	return &a, err
}

func (r *AssessmentRepository) ListByTeacher(teacherID uint) ([]model.Assessment, error) {
	var list []model.Assessment
	err := r.DB.Preload("Questions", orderedQuestions).
		Where("teacher_id = ?", teacherID).
		Order("created_at desc").
		Find(&list).Error
	return list, err
}

// ListAll 学生可见的测验列表，不加载题目
func (r *AssessmentRepository) ListAll() ([]model.Assessment, error) {
	var list []model.Assessment
	err := r.DB.Preload("Teacher").Order("created_at desc").Find(&list).Error
	return list, err
}

// DeleteCascade 删除测验及其题目、提交记录、答题明细和评语
func (r *AssessmentRepository) DeleteCascade(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		submissionIDs := tx.Model(&model.Submission{}).Select("id").Where("assessment_id = ?", id)
		if err := tx.Unscoped().Where("submission_id IN (?)", submissionIDs).Delete(&model.SubmissionAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("assessment_id = ?", id).Delete(&model.Submission{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("assessment_id = ?", id).Delete(&model.Feedback{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("assessment_id = ?", id).Delete(&model.AssessmentQuestion{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Assessment{}, id).Error
	})
}

// CountQuestions 每个测验的题目数
func (r *AssessmentRepository) CountQuestions(ids []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	var rows []struct {
		AssessmentID uint
		Count        int
	}
	err := r.DB.Model(&model.AssessmentQuestion{}).
		Select("assessment_id, COUNT(*) as count").
		Where("assessment_id IN ?", ids).
		Group("assessment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AssessmentID] = row.Count
	}
	return counts, nil
}
