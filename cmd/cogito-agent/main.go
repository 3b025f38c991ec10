// Command cogito-agent runs the learning loop: it opens storage, seeds
// skills and goals, wires the collaborators, and schedules cycles until
// interrupted. The optional status API serves committed state over HTTP and
// pushes cycle events over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/cogito/internal/awareness"
	"github.com/scrypster/cogito/internal/collab"
	"github.com/scrypster/cogito/internal/config"
	"github.com/scrypster/cogito/internal/goals"
	"github.com/scrypster/cogito/internal/memory"
	"github.com/scrypster/cogito/internal/scheduler"
	"github.com/scrypster/cogito/internal/skills"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/internal/storage/postgres"
	"github.com/scrypster/cogito/internal/storage/sqlite"
	"github.com/scrypster/cogito/pkg/types"
	"github.com/scrypster/cogito/web/handlers"
)

func main() {
	once := flag.Bool("once", false, "Run a single learning cycle and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, goalMgr, err := wire(ctx, cfg, store)
	if err != nil {
		log.Fatalf("Failed to wire components: %v", err)
	}

	hub := handlers.NewEventHub()
	sched.OnCycleEnd(func(c types.LearningCycle) {
		hub.Broadcast(handlers.CycleEvent{Type: "cycle_completed", Cycle: c})
	})

	var srv *http.Server
	if cfg.Web.Enabled {
		api := handlers.NewAPI(sched, goalMgr, store.Cycles(), store.Metrics())
		srv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
			Handler: handlers.NewRouter(api, hub, cfg),
		}
		go func() {
			log.Printf("status API listening on http://%s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: status API stopped: %v", err)
			}
		}()
	}

	if *once {
		cycle, err := sched.RunCycle(ctx)
		if err != nil {
			log.Fatalf("Learning cycle failed: %v", err)
		}
		log.Printf("cycle %d done: %s", cycle.CycleID, cycle.Outcome)
		shutdown(srv, hub)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.RunForever(ctx, cfg.Scheduler.CycleInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: scheduler stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("WARNING: scheduler did not stop in time")
	}
	shutdown(srv, hub)
}

func shutdown(srv *http.Server, hub *handlers.EventHub) {
	hub.Close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("WARNING: status API shutdown: %v", err)
		}
	}
}

// openStore selects the storage backend from config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "cogito.db"))
	}
}

// wire assembles the components over the store, loading persisted skills,
// seeding missing ones, and proposing the configured initial goals.
func wire(ctx context.Context, cfg *config.Config, store storage.Store) (*scheduler.Scheduler, *goals.Manager, error) {
	registry, err := skills.NewRegistry(store.Skills(), cfg.Skills.Ceiling, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := registry.Load(ctx); err != nil {
		return nil, nil, err
	}
	if err := registry.Seed(ctx, cfg.Seed.Skills); err != nil {
		return nil, nil, err
	}

	mem, err := memory.NewStore(store.Memories(), cfg.Memory.ImportanceDecayAge, cfg.Memory.ImportanceDecayFactor)
	if err != nil {
		return nil, nil, err
	}

	tracker, err := awareness.NewTracker(registry, mem, store.Metrics(), nil, cfg.Awareness.LevelEpsilon)
	if err != nil {
		return nil, nil, err
	}

	goalMgr, err := goals.NewManager(store.Goals(), registry, cfg.Skills.SatisfiedThreshold)
	if err != nil {
		return nil, nil, err
	}
	for skill, description := range cfg.Seed.InitialGoals {
		if _, err := goalMgr.ProposeGoal(ctx, skill, description); err != nil {
			return nil, nil, fmt.Errorf("propose initial goal for %s: %w", skill, err)
		}
	}

	var researcher collab.Researcher = collab.StaticResearcher{}
	if cfg.Collab.SearchURL != "" {
		researcher = collab.NewHTTPResearcher(cfg.Collab.SearchURL, cfg.Collab.SearchRate, cfg.Collab.SearchTimeout)
	}

	sched, err := scheduler.New(scheduler.Config{
		VideoEveryN:        cfg.Scheduler.VideoEveryN,
		MaintenanceEveryN:  cfg.Scheduler.MaintenanceEveryN,
		MaxQueriesPerCycle: cfg.Scheduler.MaxQueriesPerCyc,
		SearchTimeout:      cfg.Collab.SearchTimeout,
		DiscoverTimeout:    cfg.Collab.DiscoverTimeout,
		AnalyzeTimeout:     cfg.Collab.AnalyzeTimeout,
		SkillDecayRate:     cfg.Skills.DecayRate,
		CoreTopics:         cfg.Seed.CoreTopics,
	}, store.Cycles(), registry, mem, tracker, goalMgr,
		researcher, collab.StaticDiscoverer{}, collab.StaticAnalyzer{})
	if err != nil {
		return nil, nil, err
	}
	return sched, goalMgr, nil
}
