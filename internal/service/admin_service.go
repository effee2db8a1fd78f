package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApprovalCounts 教师审批统计
type ApprovalCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

type AdminService struct {
	UserRepo *repository.UserRepository
}

func NewAdminService(userRepo *repository.UserRepository) *AdminService {
	return &AdminService{UserRepo: userRepo}
}

func parseStatus(raw string) (model.UserStatus, error) {
	status := model.UserStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "", model.StatusPending, model.StatusApproved, model.StatusRejected:
		return status, nil
	}
	return "", util.Validationf("unknown approval status %q", raw)
}

// ListApprovals status 为空时返回全部教师
func (s *AdminService) ListApprovals(rawStatus string) ([]model.User, error) {
	status, err := parseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	return s.UserRepo.ListByRoleAndStatus(model.Teacher, status)
}

func (s *AdminService) Counts() (*ApprovalCounts, error) {
	counts, err := s.UserRepo.CountByStatus(model.Teacher)
	if err != nil {
		return nil, err
	}
	return &ApprovalCounts{
		Pending:  counts[model.StatusPending],
		Approved: counts[model.StatusApproved],
		Rejected: counts[model.StatusRejected],
	}, nil
}

func (s *AdminService) Approve(adminID, teacherID uint) (*model.User, error) {
	return s.decide(adminID, teacherID, model.StatusApproved, "")
}

func (s *AdminService) Reject(adminID, teacherID uint, reason string) (*model.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, util.Validationf("rejection reason is required")
	}
	return s.decide(adminID, teacherID, model.StatusRejected, reason)
}

// decide 不发送邮件，审批结果写入日志
func (s *AdminService) decide(adminID, teacherID uint, status model.UserStatus, reason string) (*model.User, error) {
	user, err := s.UserRepo.FindByID(teacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}
	if user.Role != model.Teacher {
		return nil, util.Validationf("user %d is not a teacher", teacherID)
	}

	if err := s.UserRepo.UpdateStatus(teacherID, status, reason); err != nil {
		return nil, err
	}
	user.Status = status
	user.RejectionReason = reason

	logger.Log.Info("teacher approval decided",
		zap.Uint("adminID", adminID),
		zap.Uint("teacherID", teacherID),
		zap.String("email", user.Email),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return user, nil
}
