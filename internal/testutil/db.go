// Package testutil 测试公用的数据库与数据构造
package testutil

import (
	"assessment_backend/internal/model"
	"assessment_backend/pkg/database"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// NewDB 在临时目录中创建已迁移的 SQLite 数据库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser 密码统一为 password123
func CreateUser(t *testing.T, db *gorm.DB, email string, role model.UserRole, status model.UserStatus) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &model.User{Name: email, Email: email, Password: string(hash), Role: role, Status: status}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateAssessment 创建包含 n 道题的测验，第 i 道题正确答案为 i%2
func CreateAssessment(t *testing.T, db *gorm.DB, teacherID uint, subject string, n int) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		TeacherID:      teacherID,
		AssessmentName: subject + " quiz",
		Subject:        subject,
		GradeLevel:     "10",
		TimeLimit:      model.DefaultTimeLimit,
	}
	for i := 0; i < n; i++ {
		a.Questions = append(a.Questions, model.AssessmentQuestion{
			QuestionText:  subject + " question " + string(rune('A'+i)),
			Options:       []string{"yes", "no"},
			CorrectAnswer: i % 2,
			Marks:         1,
			Source:        model.SourceOriginal,
			Order:         i,
		})
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	return a
}
