package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lifecycle-agent/internal/application/command/args"
	"lifecycle-agent/internal/application/command/backup_units"
	"lifecycle-agent/internal/application/command/restore_units"
	"lifecycle-agent/internal/application/command/rollback_units"
	"lifecycle-agent/internal/application/command/update_units"
	"lifecycle-agent/internal/application/command/verify_backups"
	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/application/query/get_snapshot"
	"lifecycle-agent/internal/application/query/get_stale_backups"
)

func selectionFlags(flags *pflag.FlagSet, sel *args.Selection) {
	flags.StringVar(&sel.Unit, "unit", "", "Select one unit by name")
	flags.StringVar(&sel.Host, "host", "", "Select every unit of a host")
	flags.StringVar(&sel.Group, "group", "", "Select every unit of a host group")
}

func itemFlags(flags *pflag.FlagSet, items *args.Items) {
	flags.BoolVar(&items.Files, "files", false, "Only unit files")
	flags.BoolVar(&items.Databases, "databases", false, "Only databases")
	flags.StringVar(&items.Database, "database", "", "Only the named database")
}

func (c *cli) backupCmd() *cobra.Command {
	var msg backup_units.BackupUnitsCommand
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up unit files and databases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.dispatch(cmd.Context(), msg)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	itemFlags(cmd.Flags(), &msg.Items)
	cmd.Flags().BoolVar(&msg.DryRun, "dry-run", false, "Report what would be backed up")
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	var msg verify_backups.VerifyBackupsCommand
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of the newest backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.dispatch(cmd.Context(), msg)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	itemFlags(cmd.Flags(), &msg.Items)
	cmd.Flags().BoolVar(&msg.Deep, "deep", false, "Restore dumps into a temporary database and count its contents")
	cmd.Flags().StringVar(&msg.Date, "date", "", "Verify the backups of this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&msg.DryRun, "dry-run", false, "Report what would be verified")
	return cmd
}

func (c *cli) restoreCmd() *cobra.Command {
	var msg restore_units.RestoreUnitsCommand
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore unit files and databases from backups",
		Long: `Restore replaces live data. Without --confirm it only prints the plan
and exits with code 3.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.dispatch(cmd.Context(), msg)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	itemFlags(cmd.Flags(), &msg.Items)
	cmd.Flags().StringVar(&msg.Date, "date", "", "Restore the backups of this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&msg.SourceHost, "source-host", "", "Restore backups taken on another host")
	cmd.Flags().BoolVar(&msg.Confirm, "confirm", false, "Apply the restore")
	cmd.Flags().BoolVar(&msg.DryRun, "dry-run", false, "Report what would be restored")
	cmd.Flags().BoolVar(&msg.SkipSafetyDump, "skip-safety-dump", false, "Do not copy current data before replacing it")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var msg update_units.UpdateUnitsCommand
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Pull new images and recreate units, keeping a rollback snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.dispatch(cmd.Context(), msg)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	cmd.Flags().StringVar(&msg.DefinitionFile, "definition", "", "Replace the compose definition of the unit with this file")
	cmd.Flags().BoolVar(&msg.DryRun, "dry-run", false, "Report what would be updated")
	return cmd
}

func (c *cli) rollbackCmd() *cobra.Command {
	var msg rollback_units.RollbackUnitsCommand
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Return units to the images recorded before their last update",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.dispatch(cmd.Context(), msg)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	itemFlags(cmd.Flags(), &msg.Items)
	cmd.Flags().BoolVar(&msg.Combined, "combined", false, "Also restore files and databases from backups")
	cmd.Flags().StringVar(&msg.Date, "date", "", "Restore the backups of this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&msg.Confirm, "confirm", false, "Apply a combined rollback")
	cmd.Flags().BoolVar(&msg.DryRun, "dry-run", false, "Report what would be rolled back")
	return cmd
}

func (c *cli) snapshotCmd() *cobra.Command {
	var msg get_snapshot.GetSnapshotQuery
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the rollback snapshots of units",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.query(cmd.Context(), msg, c.printSnapshots)
		},
	}
	selectionFlags(cmd.Flags(), &msg.Selection)
	return cmd
}

func (c *cli) staleCmd() *cobra.Command {
	var msg get_stale_backups.GetStaleBackupsQuery
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List units without a recent successful backup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.query(cmd.Context(), msg, c.printStale)
		},
	}
	cmd.Flags().DurationVar(&msg.Threshold, "older-than", time.Duration(0), "Age after which a backup is stale (default from config)")
	return cmd
}

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default filled in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := os.Stat(c.configPath)
			switch {
			case err == nil && !force:
				c.exitCode = exitFailed
				return fmt.Errorf("%s already exists, use --force to overwrite it", c.configPath)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				c.exitCode = exitFailed
				return err
			}
			if err := config.SaveConfig(config.NewConfig(), c.configPath); err != nil {
				c.exitCode = exitFailed
				return err
			}
			fmt.Fprintln(c.out, "Configuration written to", c.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
