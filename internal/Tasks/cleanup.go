package tasks

import (
	"context"
	"log"
	"time"

	"chatrelay/internal/repository"

	"github.com/robfig/cron/v3"
)

// RetentionSweeper deletes messages past the retention window on a
// nightly schedule, complementing the per-room eviction done at join.
type RetentionSweeper struct {
	repo          *repository.PostgresMessagesRepo
	retentionDays int
}

func NewRetentionSweeper(repo *repository.PostgresMessagesRepo, retentionDays int) *RetentionSweeper {
	return &RetentionSweeper{
		repo:          repo,
		retentionDays: retentionDays,
	}
}

func (t *RetentionSweeper) Start() {
	c := cron.New()

	_, err := c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		cutoff := time.Now().AddDate(0, 0, -t.retentionDays)
		if err := t.repo.DeleteAllOlderThan(ctx, cutoff); err != nil {
			log.Printf("[WORKER] Retention sweep failed: %v", err)
			return
		}
	})
	if err != nil {
		log.Printf("[WORKER] Error scheduling cron: %v", err)
		return
	}

	c.Start()
}
