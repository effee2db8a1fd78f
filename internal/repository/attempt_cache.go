package repository

import (
	"assessment_backend/internal/model"
	"assessment_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AttemptCache 缓存学生作答视图。rdb 为 nil 时所有操作为空操作
type AttemptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAttemptCache(rdb *redis.Client, ttl time.Duration) *AttemptCache {
	return &AttemptCache{rdb: rdb, ttl: ttl}
}

func attemptKey(id uint) string {
	return fmt.Sprintf("assessment:attempt:%d", id)
}

func (c *AttemptCache) Get(ctx context.Context, id uint) (*model.AttemptView, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, attemptKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("Attempt cache read failed", zap.Uint("assessmentId", id), zap.Error(err))
		}
		return nil, false
	}
	var view model.AttemptView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (c *AttemptCache) Set(ctx context.Context, view *model.AttemptView) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, attemptKey(view.ID), raw, c.ttl).Err(); err != nil {
		logger.Log.Warn("Attempt cache write failed", zap.Uint("assessmentId", view.ID), zap.Error(err))
	}
}

func (c *AttemptCache) Invalidate(ctx context.Context, id uint) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, attemptKey(id)).Err(); err != nil {
		logger.Log.Warn("Attempt cache invalidate failed", zap.Uint("assessmentId", id), zap.Error(err))
	}
}
