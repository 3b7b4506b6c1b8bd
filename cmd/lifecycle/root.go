package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lifecycle-agent/internal/application/agent"
	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/application/version"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/cqrs"
	"lifecycle-agent/pkg/log"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitPartial     = 2
	exitUnconfirmed = 3
	exitUsage       = 64
)

const defaultConfigPath = "/opt/lifecycle/config.json"

// runner dispatches messages to the application buses.
type runner interface {
	Dispatch(ctx context.Context, cmd cqrs.Command) (interface{}, error)
	Query(ctx context.Context, q cqrs.Query) (interface{}, error)
	Close()
}

// runnerFactory opens a runner for the configuration at path.
type runnerFactory func(ctx context.Context, path string) (runner, error)

func newAgentRunner(ctx context.Context, path string) (runner, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.InitLog(cfg.LogLevel)
	return agent.NewAgent(ctx, cfg)
}

// cli holds the state shared by every subcommand.
type cli struct {
	open       runnerFactory
	out        io.Writer
	configPath string
	jsonOutput bool
	exitCode   int
}

func run(ctx context.Context, args []string, open runnerFactory) int {
	c := &cli{open: open, out: os.Stdout}
	root := c.rootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if c.exitCode == exitOK {
			return exitUsage
		}
	}
	return c.exitCode
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lifecycle",
		Short:         "Backup, restore, update and roll back containerised units",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", defaultConfigPath, "Path to configuration file")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		c.backupCmd(),
		c.verifyCmd(),
		c.restoreCmd(),
		c.updateCmd(),
		c.rollbackCmd(),
		c.snapshotCmd(),
		c.staleCmd(),
		c.initCmd(),
	)
	return root
}

// dispatch runs cmd and prints its batch report.
func (c *cli) dispatch(ctx context.Context, cmd cqrs.Command) error {
	r, err := c.open(ctx, c.configPath)
	if err != nil {
		c.exitCode = exitFailed
		return err
	}
	defer r.Close()

	res, err := r.Dispatch(ctx, cmd)
	if rep, ok := res.(*model.BatchReport); ok && rep != nil {
		if perr := c.printReport(rep); perr != nil {
			return perr
		}
		c.exitCode = exitCodeFor(rep, err)
	} else if err != nil {
		c.exitCode = exitFailed
	}
	if errors.Is(err, model.ErrConfirmationRequired) {
		c.exitCode = exitUnconfirmed
	}
	return err
}

// query runs q and prints its result.
func (c *cli) query(ctx context.Context, q cqrs.Query, print func(interface{}) error) error {
	r, err := c.open(ctx, c.configPath)
	if err != nil {
		c.exitCode = exitFailed
		return err
	}
	defer r.Close()

	res, err := r.Query(ctx, q)
	if err != nil {
		c.exitCode = exitFailed
		return err
	}
	if c.jsonOutput {
		return c.printJSON(res)
	}
	return print(res)
}

func exitCodeFor(rep *model.BatchReport, err error) int {
	switch rep.Status() {
	case model.StatusSuccess, model.StatusPlanned:
		if err != nil {
			return exitFailed
		}
		return exitOK
	case model.StatusPartial:
		return exitPartial
	}
	return exitFailed
}
