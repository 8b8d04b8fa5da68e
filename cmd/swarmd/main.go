package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"terraswarm/internal/adapter/handler"
	"terraswarm/internal/adapter/journal"
	"terraswarm/internal/domain"
	"terraswarm/internal/infra/config"
	"terraswarm/internal/infra/logger"
	"terraswarm/internal/infra/tracer"
	"terraswarm/internal/usecase/eventbus"
	"terraswarm/internal/usecase/swarm"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "terraswarm.yaml", "path to YAML config")
	simulate := flag.Bool("simulate", false, "submit synthetic assessment tasks")
	flag.Parse()

	if err := run(*configPath, *simulate); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, simulate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if simulate {
		cfg.Simulate.Enabled = true
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	bus := eventbus.New(log.With("component", "eventbus"))

	// Mirror every lifecycle event into the log at debug level.
	unsubscribeLog := bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		log.Debug("event",
			"type", string(event.Type),
			"task_id", event.TaskID,
			"agent_id", event.AgentID,
		)
	})
	defer unsubscribeLog()

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, cfg.Journal.Breaker,
			log.With("component", "journal"))
		if err != nil {
			return err
		}
		defer j.Close()
		defer j.Attach(bus)()
		log.Info("journal open", "path", cfg.Journal.Path)
	}

	tick, err := cfg.Swarm.TickInterval()
	if err != nil {
		return err
	}
	coordinator := swarm.NewCoordinator(swarm.Options{
		TickInterval: tick,
		BatchSize:    cfg.Swarm.BatchSize,
	}, handler.NewTerraBuild(), bus, log.With("component", "swarm"))

	for _, ac := range cfg.Swarm.Roster {
		if err := coordinator.RegisterAgent(ctx, rosterAgent(ac)); err != nil {
			return fmt.Errorf("register %s: %w", ac.ID, err)
		}
	}

	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	log.Info("terraswarm started",
		"agents", len(cfg.Swarm.Roster),
		"tick", tick,
		"batch_size", cfg.Swarm.BatchSize,
	)

	if cfg.Simulate.Enabled {
		go runSimulator(ctx, coordinator, cfg.Simulate, log.With("component", "simulator"))
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return coordinator.Shutdown(shutdownCtx)
}

// rosterAgent converts a config roster entry into a domain agent.
func rosterAgent(ac config.AgentConfig) domain.Agent {
	return domain.Agent{
		ID:           ac.ID,
		Name:         ac.Name,
		Type:         domain.AgentType(ac.Type),
		Capabilities: ac.Capabilities,
		Priority:     ac.Priority,
		Budget: domain.ResourceBudget{
			CPU:       ac.Budget.CPU,
			MemoryMB:  ac.Budget.MemoryMB,
			StorageMB: ac.Budget.StorageMB,
		},
		Dependencies: ac.Dependencies,
	}
}
