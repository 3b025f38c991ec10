// Command cogito-inspect prints agent state straight from the database
// without starting the learning loop. It is safe to run next to a live
// agent: everything it reads is committed state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/scrypster/cogito/internal/config"
	"github.com/scrypster/cogito/internal/storage"
	"github.com/scrypster/cogito/internal/storage/postgres"
	"github.com/scrypster/cogito/internal/storage/sqlite"
	"github.com/scrypster/cogito/pkg/types"
)

func main() {
	show := flag.String("show", "status", "What to print: status, skills, goals, memories, cycles")
	source := flag.String("source", "", "Filter memories by source (search, video, vision, youtube, reflection)")
	limit := flag.Int("limit", 20, "Maximum rows to print")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch *show {
	case "status":
		printStatus(ctx, w, store)
	case "skills":
		printSkills(ctx, w, store)
	case "goals":
		printGoals(ctx, w, store)
	case "memories":
		printMemories(ctx, w, store, types.MemorySource(*source), *limit)
	case "cycles":
		printCycles(ctx, w, store, *limit)
	default:
		log.Fatalf("Unknown -show value %q", *show)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN)
	default:
		return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "cogito.db"))
	}
}

func printStatus(ctx context.Context, w *tabwriter.Writer, store storage.Store) {
	cycle, err := store.Cycles().Latest(ctx)
	if err != nil {
		fmt.Fprintln(w, "no cycles recorded yet")
		return
	}
	fmt.Fprintf(w, "last cycle\t%d\n", cycle.CycleID)
	fmt.Fprintf(w, "topic\t%s\n", cycle.Topic)
	fmt.Fprintf(w, "outcome\t%s\n", cycle.Outcome)
	fmt.Fprintf(w, "started\t%s\n", cycle.StartedAt.Format(time.RFC3339))
	if cycle.EndedAt != nil {
		fmt.Fprintf(w, "ended\t%s\n", cycle.EndedAt.Format(time.RFC3339))
	}

	if point, err := store.Metrics().Latest(ctx); err == nil {
		fmt.Fprintf(w, "consciousness\t%.4f\n", point.Level)
	}

	counts, err := store.Memories().Counts(ctx)
	if err == nil {
		fmt.Fprintf(w, "memories\t%d\n", counts.Total)
		for source, n := range counts.BySource {
			fmt.Fprintf(w, "  %s\t%d\n", source, n)
		}
	}

	if active, err := store.Goals().List(ctx, types.GoalActive); err == nil {
		fmt.Fprintf(w, "active goals\t%d\n", len(active))
		for _, goal := range active {
			fmt.Fprintf(w, "  %s\t%.3f\n", goal.TargetSkill, goal.Priority)
		}
	}
}

func printSkills(ctx context.Context, w *tabwriter.Writer, store storage.Store) {
	records, err := store.Skills().Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load skills: %v", err)
	}
	fmt.Fprintln(w, "SKILL\tSCORE\tTREND\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%.3f\t%+.4f\t%s\n", rec.Name, rec.Score, rec.Trend, rec.LastUpdated.Format(time.RFC3339))
	}
}

func printGoals(ctx context.Context, w *tabwriter.Writer, store storage.Store) {
	list, err := store.Goals().List(ctx, "")
	if err != nil {
		log.Fatalf("Failed to load goals: %v", err)
	}
	fmt.Fprintln(w, "STATUS\tSKILL\tPRIORITY\tDESCRIPTION")
	for _, goal := range list {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\n", goal.Status, goal.TargetSkill, goal.Priority, goal.Description)
	}
}

func printMemories(ctx context.Context, w *tabwriter.Writer, store storage.Store, source types.MemorySource, limit int) {
	if source != "" && !source.Valid() {
		log.Fatalf("Unknown memory source %q", source)
	}
	entries, err := store.Memories().List(ctx, storage.MemoryFilter{Source: source}, storage.ListOptions{Limit: limit})
	if err != nil {
		log.Fatalf("Failed to load memories: %v", err)
	}
	fmt.Fprintln(w, "CREATED\tSOURCE\tIMPORTANCE\tCONTENT")
	for _, entry := range entries {
		content := entry.Content
		if len(content) > 80 {
			content = content[:77] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", entry.CreatedAt.Format(time.RFC3339), entry.Source, entry.Importance, content)
	}
}

func printCycles(ctx context.Context, w *tabwriter.Writer, store storage.Store, limit int) {
	cycles, err := store.Cycles().Recent(ctx, limit)
	if err != nil {
		log.Fatalf("Failed to load cycles: %v", err)
	}
	fmt.Fprintln(w, "ID\tOUTCOME\tTOPIC\tSTARTED\tNOTES")
	for _, cycle := range cycles {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", cycle.CycleID, cycle.Outcome, cycle.Topic, cycle.StartedAt.Format(time.RFC3339), cycle.Notes)
	}
}
