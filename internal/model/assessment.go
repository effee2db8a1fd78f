package model

import (
	"gorm.io/datatypes"
)

const DefaultTimeLimit = 30

// swagger:model Assessment
type Assessment struct {
	BaseModel
	TeacherID      uint                 `gorm:"index;not null" json:"teacherId"`
	Teacher        *User                `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	AssessmentName string               `gorm:"size:255;not null" json:"assessmentName"`
	Subject        string               `gorm:"size:100;index;not null" json:"subject"`
	GradeLevel     string               `gorm:"size:50;not null" json:"gradeLevel"`
	TimeLimit      int                  `gorm:"default:30" json:"timeLimit"` // Minutes
	FileKey        string               `gorm:"size:255" json:"-"`
	FileURL        string               `gorm:"size:500" json:"fileUrl"`
	FileType       string               `gorm:"size:20" json:"fileType"`
	FileSize       int64                `json:"fileSize"`
	Questions      []AssessmentQuestion `gorm:"foreignKey:AssessmentID" json:"questions"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// TotalMarks 所有题目分值之和
func (a *Assessment) TotalMarks() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Marks
	}
	return total
}

// QuestionSource 题目来源：original 为文档解析，ai 为模型生成，fallback 为备用题库
type QuestionSource string

const (
	SourceOriginal QuestionSource = "original"
	SourceAI       QuestionSource = "ai"
	SourceFallback QuestionSource = "fallback"
)

// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	BaseModel
	AssessmentID  uint                        `gorm:"index;not null" json:"assessmentId"`
	QuestionText  string                      `gorm:"type:text;not null" json:"questionText"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer int                         `json:"correctAnswer"`
	Marks         int                         `gorm:"default:1" json:"marks"`
	Topic         string                      `gorm:"size:100" json:"topic,omitempty"`
	Source        QuestionSource              `gorm:"size:20;default:'original'" json:"source"`
	Order         int                         `gorm:"column:sort_order;default:0" json:"order"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

// AttemptQuestion 学生作答视图，不含正确答案
type AttemptQuestion struct {
	ID           uint     `json:"id"`
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
	Marks        int      `json:"marks"`
}

// AttemptView 学生作答时返回的测验
type AttemptView struct {
	ID             uint              `json:"id"`
	AssessmentName string            `json:"assessmentName"`
	Subject        string            `json:"subject"`
	GradeLevel     string            `json:"gradeLevel"`
	TimeLimit      int               `json:"timeLimit"`
	Questions      []AttemptQuestion `json:"questions"`
}

func (a *Assessment) AttemptView() *AttemptView {
	view := &AttemptView{
		ID:             a.ID,
		AssessmentName: a.AssessmentName,
		Subject:        a.Subject,
		GradeLevel:     a.GradeLevel,
		TimeLimit:      a.TimeLimit,
		Questions:      make([]AttemptQuestion, 0, len(a.Questions)),
	}
	for _, q := range a.Questions {
		view.Questions = append(view.Questions, AttemptQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      append([]string(nil), q.Options...),
			Marks:        q.Marks,
		})
	}
	return view
}
