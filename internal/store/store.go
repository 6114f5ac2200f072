package store

import (
	"context"
	"errors"

	"github.com/kdells/postflight/internal/model"
)

// ErrNotFound is returned when a task record is not found.
var ErrNotFound = errors.New("task not found")

// ErrInvalidTransition is returned when a task status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// TaskStats holds aggregate execution statistics.
type TaskStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByName   map[string]int `json:"count_by_name"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for deferred task records.
type Store interface {
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error)
	ListTasksByRequest(ctx context.Context, requestID string) ([]*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) error
	UpdateTask(ctx context.Context, t *model.Task) error
	GetTaskStats(ctx context.Context) (*TaskStats, error)
	Close() error
}
