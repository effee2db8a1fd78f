package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	GenerationKindQuestions = "questions"
	GenerationKindFeedback  = "feedback"
)

// GenerationLog 每次模型调用的原始回复与解析过程，存储在 MongoDB
type GenerationLog struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind         string             `bson:"kind" json:"kind"`
	UserID       uint               `bson:"userId" json:"userId"`
	AssessmentID uint               `bson:"assessmentId,omitempty" json:"assessmentId,omitempty"`
	SubmissionID uint               `bson:"submissionId,omitempty" json:"submissionId,omitempty"`
	Filename     string             `bson:"filename,omitempty" json:"filename,omitempty"`
	Provider     string             `bson:"provider" json:"provider"`
	Source       string             `bson:"source,omitempty" json:"source,omitempty"`
	RawReply     string             `bson:"rawReply,omitempty" json:"rawReply,omitempty"`
	Skipped      []string           `bson:"skipped,omitempty" json:"skipped,omitempty"`
	Warnings     []string           `bson:"warnings,omitempty" json:"warnings,omitempty"`
	Error        string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}
