package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cl "shadowrealms/internal/cli"
	"shadowrealms/internal/config"
	"shadowrealms/internal/db"
	"shadowrealms/internal/journal"
	"shadowrealms/internal/ledger"
	"shadowrealms/internal/syncq"

	"github.com/spf13/cobra"
)

type globals struct {
	apiBase     string
	adminSecret string
	journalDir  string
}

func main() {
	cfg, err := config.LoadCLIFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	g := &globals{apiBase: cfg.APIBaseURL, adminSecret: cfg.AdminSecret, journalDir: cfg.JournalDir}

	root := &cobra.Command{
		Use:          "realmsctl",
		Short:        "Shadow Realms player ledger client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "ledger API base URL")
	root.PersistentFlags().StringVar(&g.adminSecret, "admin-secret", g.adminSecret, "secret for admin routes")

	root.AddCommand(
		newMigrateCmd(),
		newPlayerCmd(g),
		newShopCmd(g),
		newClaimCmd(g),
		newBondCmd(g),
		newLinkCmd(g),
		newResetCmd(g),
		newSyncCmd(g),
		newJournalCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(g *globals) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"), g.adminSecret)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStoreFromEnv()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			var applied []string
			switch cfg.Kind {
			case config.StorePostgres:
				pool, err := db.Connect(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				applied, err = db.MigratePostgres(ctx, pool)
				if err != nil {
					return err
				}
			case config.StoreSQLite:
				sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer sqlDB.Close()
				applied, err = db.MigrateSQLite(ctx, sqlDB)
				if err != nil {
					return err
				}
			}
			if len(applied) == 0 {
				printInfo("Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				printInfo("applied " + name)
			}
			printSuccess(fmt.Sprintf("Applied %d migration(s) to %s.", len(applied), cfg.Kind))
			return nil
		},
	}
}

func newResetCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Purge every player (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := promptConfirm("Purge ALL players, claims and relationships?")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Aborted.")
					return nil
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(g).Reset(ctx)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Purged %s player(s).", comma(int64Field(out, "purged"))))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newSyncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			res := replayQueue(ctx, newClient(g), queue)
			if err := syncq.Save(res.remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d rejected=%d remaining=%d", res.replayed, res.rejected, len(res.remaining)))
			return nil
		},
	}
}

type syncResult struct {
	replayed  int
	rejected  int
	remaining []syncq.Command
}

// replayQueue sends each queued write in order. Entries the server refused
// for good are dropped; transport failures and retryable server errors stay
// queued.
func replayQueue(ctx context.Context, client *cl.Client, queue []syncq.Command) syncResult {
	res := syncResult{remaining: make([]syncq.Command, 0, len(queue))}
	for _, q := range queue {
		_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey, q.Admin)
		switch {
		case err == nil:
			res.replayed++
		case alreadyApplied(err):
			res.replayed++
			printInfo(fmt.Sprintf("Already applied: %s %s", q.Method, q.Path))
		case cl.IsAPIError(err) && !cl.IsRetryable(err):
			res.rejected++
			printError(fmt.Sprintf("Rejected %s %s: %v", q.Method, q.Path, err))
		default:
			res.remaining = append(res.remaining, q)
			printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
		}
	}
	return res
}

// alreadyApplied reports conflicts that mean an earlier attempt of the same
// queued write reached the server.
func alreadyApplied(err error) bool {
	var apiErr *cl.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Reason {
	case ledger.ReasonDuplicateRequest, ledger.ReasonAlreadyRegistered, ledger.ReasonAlreadyBonded:
		return true
	}
	return false
}

func newJournalCmd(g *globals) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local audit journal",
	}

	var kind, player string
	cat := &cobra.Command{
		Use:   "cat",
		Short: "Print journaled ledger events in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := journal.Files(g.journalDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				printInfo("No journal files in " + g.journalDir)
				return nil
			}
			n := 0
			for _, path := range files {
				err := journal.Read(path, func(ev ledger.Event) error {
					if kind != "" && ev.Kind != kind {
						return nil
					}
					if player != "" && ev.PlayerID != player {
						return nil
					}
					renderEvent(ev)
					n++
					return nil
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			printInfo(fmt.Sprintf("%d event(s) from %d file(s).", n, len(files)))
			return nil
		},
	}
	cat.Flags().StringVar(&g.journalDir, "dir", g.journalDir, "journal directory")
	cat.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cat.Flags().StringVar(&player, "player", "", "only events for this player id")
	journalCmd.AddCommand(cat)
	return journalCmd
}

// queueOnNetworkError parks a write in the offline queue when the API could
// not be reached or answered with a retryable error. Other server rejections
// are returned as-is.
func queueOnNetworkError(err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if (cl.IsAPIError(err) && !cl.IsRetryable(err)) || errors.Is(err, context.Canceled) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed: %w (queue write failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("API unavailable (%v); queued %s %s for `realmsctl sync`.", err, q.Method, q.Path))
	return nil
}
