package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/stemsi/interview-coach/internal/database"
	"github.com/stemsi/interview-coach/internal/model"
	"github.com/stemsi/interview-coach/internal/repository"
)

var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Compare the stored integrity record of a session with its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	ctx := cmd.Context()
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewIntegrityRepository(pool)

	record, err := repo.GetBySession(ctx, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("load integrity record: %w", err)
	}
	counts, err := repo.CountAuditEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("count audit events: %w", err)
	}

	out := cmd.OutOrStdout()
	if record == nil {
		fmt.Fprintln(out, "No integrity record stored (session still running or abandoned before finalization).")
	} else {
		fmt.Fprintf(out, "score=%d verdict=%q warnings=%d absence=%s\n\n",
			record.Score, record.Verdict, record.WarningCount,
			time.Duration(record.TotalFaceAbsenceMs)*time.Millisecond)
	}

	recorded := map[model.IntegrityEventKind]int64{}
	if record != nil {
		for _, ev := range record.Events {
			recorded[ev.Kind]++
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KIND\tRECORD\tAUDIT")
	for _, kind := range []model.IntegrityEventKind{model.EventFaceLeft, model.EventFaceReturned, model.EventGazeAway} {
		fmt.Fprintf(w, "%s\t%d\t%d\n", kind, recorded[kind], counts[kind])
	}
	return w.Flush()
}
