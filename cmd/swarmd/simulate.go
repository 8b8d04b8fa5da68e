package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"

	"golang.org/x/time/rate"

	"terraswarm/internal/domain"
	"terraswarm/internal/infra/config"
	"terraswarm/internal/usecase/swarm"
)

// simTask is one synthetic submission template.
type simTask struct {
	taskType string
	caps     []string
}

// simCatalog covers the default roster's handler families, plus two
// poison entries: a capability nobody declares (stays pending forever)
// and a task type with no handler (fails terminally). Both paths are
// part of what the simulator is meant to demonstrate.
var simCatalog = []simTask{
	{"cost_approach", []string{"cost_approach"}},
	{"land_valuation", []string{"land_valuation"}},
	{"regional_comparison", []string{"regional_comparison"}},
	{"sales_ratio_study", []string{"sales_ratio_study"}},
	{"chart_spec", []string{"chart_spec"}},
	{"access_audit", []string{"access_audit"}},
	{"release_rollout", []string{"release_rollout"}},
	{"schema_migration", []string{"schema_migration"}},
	{"soil_survey", []string{"soil_analysis"}},          // no agent declares this
	{"quantum_valuation", []string{"cost_approach"}},    // no handler for this type
}

var simPriorities = []domain.TaskPriority{
	domain.PriorityLow, domain.PriorityMedium, domain.PriorityMedium,
	domain.PriorityHigh, domain.PriorityCritical,
}

var simRegions = []string{"north", "east", "central", "valley", "river"}

// runSimulator submits synthetic assessment tasks at the configured
// rate until ctx is cancelled or the count is exhausted.
func runSimulator(ctx context.Context, c *swarm.Coordinator, cfg config.SimulateConfig, log *slog.Logger) {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	rng := rand.New(rand.NewSource(int64(rand.Uint64())))

	log.Info("simulator started", "rate", cfg.Rate, "burst", burst, "count", cfg.Count)

	submitted := 0
	for cfg.Count == 0 || submitted < cfg.Count {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		entry := simCatalog[rng.Intn(len(simCatalog))]
		payload, _ := json.Marshal(map[string]any{
			"parcel_id": fmt.Sprintf("%02d-%04d-%03d", rng.Intn(30)+1, rng.Intn(9999), rng.Intn(999)),
			"region":    simRegions[rng.Intn(len(simRegions))],
			"tax_year":  2026,
		})

		taskID, err := c.SubmitTask(ctx, domain.Task{
			Type:                 entry.taskType,
			Priority:             simPriorities[rng.Intn(len(simPriorities))],
			Payload:              payload,
			RequiredCapabilities: entry.caps,
		})
		if err != nil {
			log.Warn("synthetic submission rejected", "type", entry.taskType, "error", err)
			continue
		}
		submitted++
		log.Debug("synthetic task submitted", "task_id", taskID, "type", entry.taskType)
	}

	log.Info("simulator finished", "submitted", submitted)
}
