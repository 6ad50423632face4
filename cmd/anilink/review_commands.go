package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anilink/internal/config"
	"anilink/internal/mapping"
	"anilink/internal/queue"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve items waiting on manual attention",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewResolveCommand(ctx))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List items in the review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), queue.StatusReview)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						filepath.Base(item.SourcePath),
						reviewReason(item),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Reason"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout(), "Resolve with `anilink review resolve <id> --show-id <tmdb-id>`")
				return nil
			})
		},
	}
}

func newReviewResolveCommand(ctx *commandContext) *cobra.Command {
	var showID int64
	var season int
	var episode int
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Pin a review item to a TMDB show and requeue it",
		Long: "Resolve records a manual mapping rule for the item's filename, so the " +
			"resolver skips searching and uses the pinned show directly, then returns " +
			"the item to the queue.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			if showID <= 0 {
				return errors.New("--show-id is required")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("queue item %d not found", id)
				}
				if item.Status != queue.StatusReview {
					return fmt.Errorf("item %d is %s, not review", id, item.Status)
				}

				catalog := mapping.NewCatalog(cfg.TMDB.MappingsPath, nil)
				if catalog == nil {
					return errors.New("tmdb.mappings_path is not configured")
				}
				rule := mapping.Rule{
					Filenames: []string{filepath.Base(item.SourcePath)},
					ShowID:    showID,
					Season:    season,
					Episode:   episode,
					Note:      strings.TrimSpace(note),
				}
				if err := catalog.Add(rule); err != nil {
					return fmt.Errorf("record mapping: %w", err)
				}

				if err := store.ReleaseReview(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Pinned %s to show %d and requeued item %d\n",
					filepath.Base(item.SourcePath), showID, id)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&showID, "show-id", 0, "TMDB show id to pin")
	cmd.Flags().IntVar(&season, "season", 0, "Override the season number")
	cmd.Flags().IntVar(&episode, "episode", 0, "Override the episode number")
	cmd.Flags().StringVar(&note, "note", "", "Optional note stored with the mapping rule")
	return cmd
}

func reviewReason(item *queue.Item) string {
	if reason := strings.TrimSpace(item.ReviewReason); reason != "" {
		return reason
	}
	return strings.TrimSpace(item.ErrorMessage)
}
