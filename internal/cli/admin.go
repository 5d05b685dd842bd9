package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/vincent19951222/quiz-website/internal/admin"
	"github.com/vincent19951222/quiz-website/internal/bitable"
	"github.com/vincent19951222/quiz-website/internal/config"
	"github.com/vincent19951222/quiz-website/internal/infra/memory"
	redisinfra "github.com/vincent19951222/quiz-website/internal/infra/redis"
	"github.com/vincent19951222/quiz-website/internal/store"
)

// adminService wires a result store and remote client for the offline
// admin subcommands. Without a Redis address the store is memory-backed
// and will be empty, which is still useful for test-connection.
func adminService(cfg config.Config) *admin.Service {
	logger := newLogger()

	var kv store.KV = memory.NewKV()
	if cfg.Redis.Addr != "" {
		kv = redisinfra.NewKV(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}
	results := store.NewResultStore(kv)
	remote := bitable.NewClient(bitableConfig(cfg), logger)
	return admin.NewService(results, remote, logger)
}

// NewSyncCmd pushes all pending attempts to the remote table.
func NewSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload unsynced attempts to the remote table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc := adminService(cfg)
			synced, total, err := svc.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("synced %d of %d pending attempts\n", synced, total)
			return nil
		},
	}
}

// NewExportCmd writes all attempts to an xlsx workbook in the working directory.
func NewExportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export attempts to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc := adminService(cfg)
			attempts, err := svc.List(cmd.Context(), store.Filter{}, store.Sort{Field: store.SortByCompletedAt, Desc: true})
			if err != nil {
				return err
			}
			filename, data, err := admin.Export(attempts, time.Now())
			if err != nil {
				return err
			}
			if err := os.WriteFile(filename, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("exported %d attempts to %s\n", len(attempts), filename)
			return nil
		},
	}
}

// NewStatsCmd prints aggregate statistics for all attempts.
func NewStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate attempt statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc := adminService(cfg)
			attempts, err := svc.List(cmd.Context(), store.Filter{}, store.Sort{Field: store.SortByCompletedAt, Desc: true})
			if err != nil {
				return err
			}
			printStats(svc.ComputeStats(attempts))
			return nil
		},
	}
}

func printStats(stats admin.Stats) {
	label := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s %d\n", label("total attempts:"), stats.TotalAttempts)
	fmt.Printf("%s %d%%\n", label("average accuracy:"), stats.AvgAccuracy)
	fmt.Printf("%s %d%%\n", label("high score rate:"), stats.HighScoreRate)
	fmt.Printf("%s %d\n", label("viewed answers:"), stats.ViewedCount)
	fmt.Printf("%s %.1f\n", label("average wrong count:"), stats.AvgWrongCount)
	fmt.Printf("%s %d min\n", label("average time used:"), stats.AvgTimeUsedMins)
}

// NewClearCmd deletes every stored attempt and viewed flag.
func NewClearCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc := adminService(cfg)
			if err := svc.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("all attempts cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
