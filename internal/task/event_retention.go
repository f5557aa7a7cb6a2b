package task

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

const (
	DefaultEventRetentionDays = 180
	EventRetentionInterval    = time.Hour
)

// EventRetentionConfig defines how long touchpoint events are kept. Zero keeps them forever.
type EventRetentionConfig struct {
	RetentionDays int
}

// EventRetentionJob prunes old touchpoint events from the local database.
type EventRetentionJob struct {
	database *gorm.DB
	logger   *zap.Logger
	config   EventRetentionConfig
	now      func() time.Time
}

func NewEventRetentionJob(database *gorm.DB, logger *zap.Logger, config EventRetentionConfig) *EventRetentionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRetentionJob{
		database: database,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Run deletes events created before the start of the retention window.
func (job *EventRetentionJob) Run(ctx context.Context) error {
	if job.config.RetentionDays <= 0 {
		return nil
	}
	cutoff := job.now().UTC().Add(-time.Duration(job.config.RetentionDays) * 24 * time.Hour).Truncate(24 * time.Hour)
	result := job.database.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.TouchpointEvent{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		job.logger.Info("touchpoint_events_pruned", zap.Int64("rows", result.RowsAffected), zap.Time("cutoff", cutoff))
	}
	return nil
}
