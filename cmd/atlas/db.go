package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/calllog"
	"github.com/zulandar/atlas/internal/config"
	"github.com/zulandar/atlas/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Call-log database commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBPruneCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the call-log tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Atlas config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	loadEnv()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("call log is disabled (database.driver: none)")
	}

	gormDB, err := db.Connect(dbOptions(cfg))
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}

func newDBPruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete calls older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPrune(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Atlas config file")
	return cmd
}

func runDBPrune(cmd *cobra.Command, configPath string) error {
	loadEnv()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	store, _, err := openCallLog(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("call log is disabled (database.driver: none)")
	}
	pruner, err := calllog.NewPruner(calllog.PrunerOpts{
		Store:     store,
		Schedule:  cfg.CallLog.PruneSchedule,
		Retention: cfg.CallLog.Retention(),
	})
	if err != nil {
		return err
	}
	n, err := pruner.PruneOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d calls older than %d days\n", n, cfg.CallLog.RetentionDays)
	return nil
}
