package repository

import (
	"assessment_backend/internal/model"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GenerationLogRepository 模型调用日志
type GenerationLogRepository interface {
	Save(ctx context.Context, entry *model.GenerationLog) error
	ListByAssessment(ctx context.Context, assessmentID uint, limit int64) ([]model.GenerationLog, error)
}

type generationLogRepo struct {
	logs *mongo.Collection
}

func NewGenerationLogRepository(db *mongo.Database) GenerationLogRepository {
	return &generationLogRepo{
		logs: db.Collection("generation_logs"),
	}
}

func (r *generationLogRepo) Save(ctx context.Context, entry *model.GenerationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.logs.InsertOne(ctx, entry)
	return err
}

func (r *generationLogRepo) ListByAssessment(ctx context.Context, assessmentID uint, limit int64) ([]model.GenerationLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cursor, err := r.logs.Find(ctx, bson.M{"assessmentId": assessmentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []model.GenerationLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
