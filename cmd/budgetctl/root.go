package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/spf13/cobra"
)

var (
	actorFlag string
	withRedis bool
)

var rootCmd = &cobra.Command{
	Use:           "budgetctl",
	Short:         "Maintenance commands for the budget store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.SetLogLevel(config.GetSettings().LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "budgetctl", "actor recorded on history rows")
	rootCmd.PersistentFlags().BoolVar(&withRedis, "redis", false, "connect to REDIS_ADDRESS for cache invalidation and locks")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(eventsCmd)
}

// connect opens the database (and Redis when asked) and returns a context
// carrying the CLI actor.
func connect(cmd *cobra.Command) (context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		return nil, fmt.Errorf("database not initialized; set DB_* env vars")
	}
	if withRedis {
		redisCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		config.ConnectRedisWithRetry(redisCtx)
		cancel()
		if config.GetRedisDB() == nil {
			return nil, fmt.Errorf("redis not reachable at %s", config.GetSettings().RedisAddress)
		}
	}
	return utils.SetUsernameInContext(ctx, actorFlag), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
