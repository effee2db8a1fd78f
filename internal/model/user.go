package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// UserStatus 教师注册审批状态，学生和管理员注册即为 approved
type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusApproved UserStatus = "approved"
	StatusRejected UserStatus = "rejected"
)

// swagger:model User
type User struct {
	BaseModel
	Name            string     `gorm:"size:100;not null" json:"name"`
	Email           string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password        string     `gorm:"size:100;not null" json:"-"`
	Role            UserRole   `gorm:"size:20;index;default:'student'" json:"role"`
	Status          UserStatus `gorm:"size:20;index;default:'approved'" json:"status"`
	RejectionReason string     `gorm:"size:500" json:"rejectionReason,omitempty"`
	GradeLevel      string     `gorm:"size:50" json:"gradeLevel,omitempty"`
	Avatar          string     `gorm:"size:255" json:"avatar"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsApproved() bool {
	return u.Status == "" || u.Status == StatusApproved
}
