package repository

import (
	"assessment_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	return &user, err
}

func (r *UserRepository) Update(user *model.User) error {
	return r.DB.Save(user).Error
}

// ListByRoleAndStatus status 为空时返回该角色的全部用户
func (r *UserRepository) ListByRoleAndStatus(role model.UserRole, status model.UserStatus) ([]model.User, error) {
	var users []model.User
	query := r.DB.Where("role = ?", role)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at desc").Find(&users).Error
	return users, err
}

// CountByStatus 按审批状态统计某角色的用户数
func (r *UserRepository) CountByStatus(role model.UserRole) (map[model.UserStatus]int64, error) {
	var rows []struct {
		Status model.UserStatus
		Count  int64
	}
	err := r.DB.Model(&model.User{}).
		Select("status, COUNT(*) as count").
		Where("role = ?", role).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[model.UserStatus]int64{
		model.StatusPending:  0,
		model.StatusApproved: 0,
		model.StatusRejected: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *UserRepository) UpdateStatus(id uint, status model.UserStatus, reason string) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"rejection_reason": reason,
		}).Error
}
