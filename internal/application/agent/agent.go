// Package agent is the composition root: it builds every collaborator from
// the configuration and exposes the command and query buses.
package agent

import (
	"context"
	"io"
	"time"

	"lifecycle-agent/internal/application/backup"
	"lifecycle-agent/internal/application/command"
	"lifecycle-agent/internal/application/config"
	"lifecycle-agent/internal/application/pull"
	"lifecycle-agent/internal/application/query"
	"lifecycle-agent/internal/application/report"
	"lifecycle-agent/internal/application/restore"
	"lifecycle-agent/internal/application/rollback"
	"lifecycle-agent/internal/application/update"
	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/internal/domain/repository"
	"lifecycle-agent/internal/domain/service/configwriter"
	"lifecycle-agent/internal/domain/service/snapshot"
	"lifecycle-agent/internal/infra/archive"
	"lifecycle-agent/internal/infra/database"
	"lifecycle-agent/internal/infra/docker/runtime"
	"lifecycle-agent/internal/infra/inventory"
	"lifecycle-agent/internal/infra/notify"
	"lifecycle-agent/internal/infra/secrets"
	"lifecycle-agent/internal/infra/sqlite"
	"lifecycle-agent/internal/infra/storage"
	"lifecycle-agent/pkg/compress"
	"lifecycle-agent/pkg/cqrs"
	"lifecycle-agent/pkg/log"
	"lifecycle-agent/pkg/metrics"
)

const flushTimeout = 10 * time.Second

// Agent represents the application agent
type Agent struct {
	config   *config.Config
	commands *cqrs.DefaultCommandBus
	queries  *cqrs.DefaultQueryBus
	recorder *sqlite.Recorder
	notifier repository.Notifier
	closers  []io.Closer
}

// NewAgent creates a new agent instance
func NewAgent(ctx context.Context, cfg *config.Config) (*Agent, error) {
	codec, err := compress.ByName(cfg.Compressor)
	if err != nil {
		return nil, log.Errorf("invalid compressor: %w", err)
	}
	archiver, err := archive.New(cfg.Compressor)
	if err != nil {
		return nil, log.Errorf("failed to create archiver: %w", err)
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, log.Errorf("failed to open artifact store: %w", err)
	}

	recorder, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		closeIfCloser(store)
		return nil, log.Errorf("failed to open operation log: %w", err)
	}

	creds := secrets.NewSource(cfg.SecretsPath)
	connector, err := newConnector(ctx, cfg, creds)
	if err != nil {
		closeIfCloser(store)
		_ = recorder.Close()
		return nil, err
	}

	notifier := notify.New(cfg.WebhookURL)
	metricsFile := ""
	if cfg.Features[config.FeatureMetrics] {
		metricsFile = cfg.MetricsFile
	}
	aggregator := report.NewAggregator(report.Options{
		Recorder:    recorder,
		Notifier:    notifier,
		Metrics:     metrics.NewRecorder(),
		MetricsFile: metricsFile,
	})

	inv := inventory.New(cfg.InventoryPath, cfg.GetAppsPath())
	snapshots := snapshot.NewStore(cfg.GetSnapshotsPath())
	var check repository.DefinitionValidator
	if len(cfg.DefinitionCheck) > 0 {
		check = configwriter.CommandValidator{Args: cfg.DefinitionCheck}
	}
	writer := configwriter.New(check)
	policy := pull.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay.Std(),
		MaxDelay:  cfg.Retry.MaxDelay.Std(),
		Timeout:   cfg.Timeouts.Pull.Std(),
	}

	backupDeps := backup.Deps{
		Inventory:   inv,
		Connector:   connector,
		Credentials: creds,
		Store:       store,
		Archiver:    archiver,
		Aggregator:  aggregator,
	}
	backupOpts := backup.Options{
		StagingDir:     cfg.GetStagingPath(),
		CompressorExt:  codec.Extension(),
		Keep:           cfg.Storage.Keep,
		Parallelism:    cfg.Parallelism,
		RecoverTimeout: cfg.Timeouts.Recover.Std(),
		VerifyAfter:    cfg.Features[config.FeatureVerifyAfterBackup],
	}
	restorePipeline := restore.New(restore.Deps{
		Inventory:   inv,
		Connector:   connector,
		Credentials: creds,
		Store:       store,
		Archiver:    archiver,
		Aggregator:  aggregator,
	}, restore.Options{
		StagingDir:     cfg.GetStagingPath(),
		CompressorExt:  codec.Extension(),
		Parallelism:    cfg.Parallelism,
		RecoverTimeout: cfg.Timeouts.Recover.Std(),
		WaitReady:      cfg.Timeouts.WaitReady.Std(),
		SafetyDump:     cfg.Features[config.FeaturePreRestoreDump],
	})

	services := command.Services{
		Backup:  backup.New(backupDeps, backupOpts),
		Verify:  backup.NewVerifier(backupDeps, backupOpts),
		Restore: restorePipeline,
		Update: update.New(update.Deps{
			Inventory:  inv,
			Connector:  connector,
			Snapshots:  snapshots,
			Writer:     writer,
			Aggregator: aggregator,
		}, update.Options{Parallelism: cfg.Parallelism, Pull: policy}),
		Rollback: rollback.New(rollback.Deps{
			Inventory:  inv,
			Connector:  connector,
			Snapshots:  snapshots,
			Writer:     writer,
			Restore:    restorePipeline,
			Aggregator: aggregator,
		}, rollback.Options{
			Parallelism:    cfg.Parallelism,
			RecoverTimeout: cfg.Timeouts.Recover.Std(),
			Pull:           policy,
		}),
	}

	// Create command bus and register handlers
	commandBus := cqrs.NewCommandBus(ctx)
	if err := command.RegisterCommandHandlers(commandBus, services); err != nil {
		closeIfCloser(store)
		_ = recorder.Close()
		return nil, err
	}

	// Create query bus and register handlers
	queryBus := cqrs.NewQueryBus()
	if err := query.RegisterQueryHandlers(queryBus, query.Sources{
		Inventory:  inv,
		Snapshots:  snapshots,
		Backups:    recorder,
		StaleAfter: cfg.StaleAfter.Std(),
	}); err != nil {
		closeIfCloser(store)
		_ = recorder.Close()
		return nil, err
	}

	a := &Agent{
		config:   cfg,
		commands: commandBus,
		queries:  queryBus,
		recorder: recorder,
		notifier: notifier,
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return a, nil
}

// newConnector builds the runtime connector. The management-API token is
// resolved only when a credential name is configured.
func newConnector(ctx context.Context, cfg *config.Config, creds *secrets.Source) (*runtime.Connector, error) {
	var token model.Secret
	if name := cfg.ManagementAPI.TokenCredential; name != "" {
		t, err := creds.Token(ctx, name)
		if err != nil {
			return nil, log.Errorf("failed to resolve management API token: %w", err)
		}
		token = t
	}
	return runtime.NewConnector(runtime.Options{
		ControlMode: model.ControlMode(cfg.ControlMode),
		StopTimeout: cfg.Timeouts.Stop.Std(),
		APIURL:      cfg.ManagementAPI.URL,
		APIToken:    token,
		Database: database.Options{
			Compressor: cfg.Compressor,
		},
	}), nil
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// Config returns the configuration the agent was built from.
func (a *Agent) Config() *config.Config {
	return a.config
}

// Dispatch runs cmd on the command bus.
func (a *Agent) Dispatch(ctx context.Context, cmd cqrs.Command) (interface{}, error) {
	return a.commands.Dispatch(ctx, cmd)
}

// Query runs q on the query bus.
func (a *Agent) Query(ctx context.Context, q cqrs.Query) (interface{}, error) {
	return a.queries.Dispatch(ctx, q)
}

// Close waits for running commands, flushes pending notifications and closes
// the operation log and the artifact store.
func (a *Agent) Close() {
	a.commands.Shutdown()
	a.commands.WaitForCompletion()

	if f, ok := a.notifier.(interface{ Flush(context.Context) }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		f.Flush(ctx)
		cancel()
	}
	if err := a.recorder.Close(); err != nil {
		log.Warn("[Agent] failed to close operation log", "error", err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn("[Agent] failed to close artifact store", "error", err)
		}
	}
}
