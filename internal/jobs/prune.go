package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"canvasmind/internal/models"
	"canvasmind/internal/services"
)

// PruneScheduler runs the nightly pending-topics cap so working memory stays
// bounded.
type PruneScheduler struct {
	scheduler gocron.Scheduler
	profiles  *services.ProfileService
	maxTopics int
}

// NewPruneScheduler builds and starts the scheduler on the given cron
// expression.
func NewPruneScheduler(profiles *services.ProfileService, schedule string, maxTopics int) (*PruneScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	p := &PruneScheduler{scheduler: s, profiles: profiles, maxTopics: maxTopics}
	if _, err := s.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(p.Run),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule prune job: %w", err)
	}

	s.Start()
	log.Printf("⏰ [PRUNE] Scheduled pending-topics prune (%s), cap %d", schedule, maxTopics)
	return p, nil
}

// Run caps every profile's pending topics. Exported so operators can trigger
// it outside the schedule.
func (p *PruneScheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	profiles, err := p.profiles.ListProfiles(ctx)
	if err != nil {
		log.Printf("⚠️ [PRUNE] Listing profiles failed: %v", err)
		return
	}

	pruned := 0
	for _, profile := range profiles {
		if len(profile.Insights.PendingTopics) <= p.maxTopics {
			continue
		}
		token := profile.Token
		err := p.profiles.MutateInsights(ctx, token, func(insights *models.BusinessInsights) bool {
			capped := models.CapPendingTopics(insights.PendingTopics, p.maxTopics)
			if len(capped) == len(insights.PendingTopics) {
				return false
			}
			insights.PendingTopics = capped
			return true
		})
		if err != nil {
			log.Printf("⚠️ [PRUNE] Failed to prune %s: %v", token, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		log.Printf("🧹 [PRUNE] Capped pending topics on %d profiles", pruned)
	}
}

// Stop shuts the scheduler down.
func (p *PruneScheduler) Stop() {
	if err := p.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [PRUNE] Scheduler shutdown failed: %v", err)
	}
}
