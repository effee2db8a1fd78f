package model

import (
	"encoding/json"
)

// FeedbackVerdict 模型返回的结构化评语
type FeedbackVerdict struct {
	OverallSummary  string     `json:"overallSummary"`
	TopicStrengths  []string   `json:"topicStrengths"`
	TopicWeaknesses []string   `json:"topicWeaknesses"`
	NextSteps       []NextStep `json:"nextSteps"`
}

type NextStep struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// swagger:model Feedback
type Feedback struct {
	BaseModel
	StudentID    uint        `gorm:"index;not null" json:"studentId"`
	Student      *User       `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	AssessmentID uint        `gorm:"index;not null" json:"assessmentId"`
	Assessment   *Assessment `gorm:"foreignKey:AssessmentID" json:"assessment,omitempty"`
	SubmissionID uint        `gorm:"index" json:"submissionId"`
	Topic        string      `gorm:"size:255" json:"topic"`
	Score        int         `json:"score"`
	Total        int         `json:"total"`
	Percentage   float64     `json:"percentage"`
	FeedbackText string      `gorm:"type:text;not null" json:"-"`
}

func (Feedback) TableName() string {
	return "feedback"
}

// FeedbackView 对外返回的评语，feedbackText 解析为对象，无法解析时为 null
type FeedbackView struct {
	Feedback
	FeedbackText *FeedbackVerdict `json:"feedbackText"`
}

func (f Feedback) View() FeedbackView {
	view := FeedbackView{Feedback: f}
	var verdict FeedbackVerdict
	if err := json.Unmarshal([]byte(f.FeedbackText), &verdict); err == nil {
		view.FeedbackText = &verdict
	}
	return view
}
