package model

import "time"

// swagger:model Submission
type Submission struct {
	BaseModel
	AssessmentID uint               `gorm:"uniqueIndex:idx_submission_assessment_student;not null" json:"assessmentId"`
	StudentID    uint               `gorm:"uniqueIndex:idx_submission_assessment_student;index;not null" json:"studentId"`
	Student      *User              `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Assessment   *Assessment        `gorm:"foreignKey:AssessmentID" json:"assessment,omitempty"`
	Answers      []SubmissionAnswer `gorm:"foreignKey:SubmissionID" json:"answers"`
	Score        int                `json:"score"`
	TotalMarks   int                `json:"totalMarks"`
	Percentage   float64            `json:"percentage"`
	TimeTaken    int                `json:"timeTaken"` // Seconds
	SubmittedAt  time.Time          `gorm:"index" json:"submittedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

// swagger:model SubmissionAnswer
type SubmissionAnswer struct {
	BaseModel
	SubmissionID   uint `gorm:"index;not null" json:"submissionId"`
	QuestionID     uint `gorm:"index;not null" json:"questionId"`
	SelectedOption int  `json:"selectedOption"`
	IsCorrect      bool `json:"isCorrect"`
	MarksObtained  int  `json:"marksObtained"`
}

func (SubmissionAnswer) TableName() string {
	return "submission_answers"
}

// SubmissionResult 提交后返回给学生的得分概要
type SubmissionResult struct {
	SubmissionID uint    `json:"submissionId"`
	Score        int     `json:"score"`
	TotalMarks   int     `json:"totalMarks"`
	Percentage   float64 `json:"percentage"`
	TimeTaken    int     `json:"timeTaken"`
}
