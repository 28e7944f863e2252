package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/vault"
)

var watchCmd = &cobra.Command{
	Use:   "watch [inbox-dir]",
	Short: "Classify notes as they land in the inbox",
	Long: "Watch the inbox folder (vault.inbox by default) and classify each note written to it. " +
		"Edits to the config file are applied without a restart.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recomputeEvery, _ := cmd.Flags().GetDuration("recompute-every")
		metricsFile, _ := cmd.Flags().GetString("metrics-file")

		d, err := openDeps(cmd, true)
		if err != nil {
			return err
		}
		defer d.close()

		inbox := d.cfg.Vault.Inbox
		if len(args) == 1 {
			inbox = args[0]
		}
		if fi, err := os.Stat(inbox); err != nil || !fi.IsDir() {
			return fmt.Errorf("inbox %q is not a directory", inbox)
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		logger := d.logger.Named("watch")

		if _, err := os.Stat(d.configPath); err == nil {
			g.Go(func() error {
				return config.Watch(ctx, d.configPath, d.cfg.Vault.Debounce,
					func(cfg *config.Config, compiled *config.Compiled) {
						if err := d.reload(ctx, cfg, compiled); err != nil {
							logger.Error(ctx, "reload rejected", zap.Error(err))
							return
						}
						fmt.Fprintln(os.Stderr, "config reloaded")
					},
					func(err error) {
						logger.Warn(ctx, "config reload failed, keeping previous", zap.Error(err))
						fmt.Fprintln(os.Stderr, "config reload failed:", err)
					})
			})
		}

		g.Go(func() error {
			return vault.WatchInbox(ctx, inbox, d.cfg.Vault.Extensions, d.cfg.Vault.Debounce,
				func(note features.Note) {
					res, err := d.engine.Classify(ctx, note)
					if err != nil {
						logger.Warn(ctx, "classify failed", zap.String("note_id", note.ID), zap.Error(err))
						fmt.Fprintln(os.Stderr, "classify", note.ID+":", err)
						return
					}
					fmt.Printf("%s  %-40s  %-12s  %-10s  %s%s\n", time.Now().Format(time.TimeOnly),
						truncate(res.NoteID, 40), res.Category, res.Bucket, res.FolderHint, markers(res))
				},
				func(err error) {
					logger.Warn(ctx, "inbox read failed", zap.Error(err))
					fmt.Fprintln(os.Stderr, "skip:", err)
				})
		})

		if recomputeEvery > 0 {
			g.Go(func() error {
				recomputeLoop(ctx, d, recomputeEvery)
				return nil
			})
		}

		fmt.Fprintf(os.Stderr, "watching %s (ctrl+c to stop)\n", inbox)
		err = g.Wait()
		if metricsFile != "" {
			if werr := d.metrics.WriteTextfile(metricsFile); werr != nil {
				return werr
			}
		}
		return err
	},
}

// recomputeLoop picks up snapshots published by other processes and folds
// in new corrections every interval until ctx is done.
func recomputeLoop(ctx context.Context, d *deps, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := d.learning.Weights().Version()
			if err := d.learning.Reload(ctx); err != nil {
				d.logger.Warn(ctx, "reload weights failed", zap.Error(err))
				continue
			}
			w, err := d.learning.RecomputeWeights(ctx)
			if err != nil {
				d.logger.Warn(ctx, "recompute failed", zap.Error(err))
				continue
			}
			if w.Version() != before {
				d.metrics.Recomputed(w.Version())
				fmt.Fprintf(os.Stderr, "weights now at v%d\n", w.Version())
			}
		}
	}
}

func init() {
	watchCmd.Flags().Duration("recompute-every", 0, "Recompute weights at this interval (0 disables)")
	watchCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")
}
