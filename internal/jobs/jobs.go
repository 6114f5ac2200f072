// Package jobs provides the simulated workloads scheduled by the demo
// endpoints. There is no real I/O anywhere: every job is a timed delay plus
// log lines, standing in for an email API call, a processing pipeline, an
// analytics sink, or an expensive cache rebuild.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/kdells/postflight/internal/tasks"
)

// Sleep returns a task that sleeps for d and logs when it is done. This is
// the stand-in for any long-running background job.
func Sleep(logger *slog.Logger, d time.Duration) tasks.Func {
	return func(ctx context.Context) error {
		start := time.Now()
		logger.Info("background sleep started", "delay", d.String())

		if err := wait(ctx, d); err != nil {
			return err
		}

		logger.Info("background sleep finished",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

// SendEmail returns a task that simulates delivering an email notification.
func SendEmail(logger *slog.Logger, recipient, message string, delay time.Duration) tasks.Func {
	return func(ctx context.Context) error {
		logger.Info("sending email", "recipient", recipient)

		if err := wait(ctx, delay); err != nil {
			return err
		}

		logger.Info("email sent", "recipient", recipient, "message", message)
		return nil
	}
}

// ProcessUpload returns a task that simulates a three-step file processing
// pipeline: metadata extraction, thumbnail generation, and a database update.
// The middle step takes twice the unit delay, like a real thumbnail pass would.
func ProcessUpload(logger *slog.Logger, fileID string, size int64, unit time.Duration) tasks.Func {
	return func(ctx context.Context) error {
		logger.Info("processing upload", "file_id", fileID, "size_bytes", size)

		steps := []struct {
			name  string
			delay time.Duration
		}{
			{"metadata extracted", unit},
			{"thumbnails generated", 2 * unit},
			{"database updated", unit},
		}
		for _, step := range steps {
			if err := wait(ctx, step.delay); err != nil {
				return err
			}
			logger.Info(step.name, "file_id", fileID)
		}

		logger.Info("processing complete", "file_id", fileID)
		return nil
	}
}

// LogAnalytics returns a task that simulates shipping an event to an
// analytics service.
func LogAnalytics(logger *slog.Logger, event, userID string, fields map[string]any, delay time.Duration) tasks.Func {
	return func(ctx context.Context) error {
		logger.Info("logging analytics event", "event", event, "user_id", userID)

		if err := wait(ctx, delay); err != nil {
			return err
		}

		logger.Info("analytics event logged", "event", event, "fields", fields)
		return nil
	}
}

// WarmCache returns a task that simulates rebuilding a cache entry with an
// expensive computation.
func WarmCache(logger *slog.Logger, key, operation string, delay time.Duration) tasks.Func {
	return func(ctx context.Context) error {
		logger.Info("warming cache", "cache_key", key)

		if err := wait(ctx, delay); err != nil {
			return err
		}

		logger.Info("cache warmed", "cache_key", key, "operation", operation)
		return nil
	}
}

// wait sleeps for d. The dispatcher runs tasks on a background context, so in
// practice the sleep always runs to completion; honoring ctx keeps the jobs
// usable under a deadline in tests.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
