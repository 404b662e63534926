// Package cli implements settlectl, the operator command line for the
// settlement engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/config"
	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/logger"
	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "settlectl",
	Short: "Operate the PPV settlement engine",
	Long: `settlectl runs settlement maintenance against the configured database:
migrations, on-demand sweeps, single-question reconciliation and stuck pool
repair. Configuration is read from the environment and .env, as for the server.`,
	SilenceUsage: true,
}

// env is what a command needs to run. openEnv is replaced in tests.
type env struct {
	db       *gorm.DB
	services *services.Container
	close    func()
}

var openEnv = func() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Environment, cfg.LogLevel)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}
	processor := services.NewStripeProcessor(cfg.Payment)

	return &env{
		db:       db,
		services: services.NewContainer(db, processor, metrics.New(), cfg.Settlement),
		close:    func() { database.Close(db) },
	}, nil
}

func withEnv(fn func(ctx context.Context, e *env, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd.Context(), e, cmd.OutOrStdout())
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
