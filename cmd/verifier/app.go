package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/connection"
	"github.com/smartdevs17/edough-upgrade-check/internal/contracts"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/migration"
	"github.com/smartdevs17/edough-upgrade-check/internal/notification"
	"github.com/smartdevs17/edough-upgrade-check/internal/pipeline"
	"github.com/smartdevs17/edough-upgrade-check/internal/report"
	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
	"github.com/smartdevs17/edough-upgrade-check/internal/snapshot"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
	"github.com/smartdevs17/edough-upgrade-check/internal/upgrade"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Application owns the chain connection and the contract bindings shared by
// the commands.
type Application struct {
	config     *config.Config
	logger     *logrus.Entry
	metrics    *metrics.Manager
	connection *connection.ConnectionManager
	client     *connection.ChainClient
	transactor signer.Transactor
	proxy      *contracts.ProxyAdmin
	escrow     *contracts.RewardEscrow
	timelock   *contracts.SharesTimeLock
	veDOUGH    *contracts.ERC20
	store      storage.Storage
}

// NewApplication initializes logging and metrics from configuration
func NewApplication(cfg *config.Config) (*Application, error) {
	logCfg := cfg.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Application{
		config:  cfg,
		logger:  utils.Component("app"),
		metrics: metrics.NewManager(),
	}, nil
}

// ConnectChain dials the node and binds the contracts
func (app *Application) ConnectChain(ctx context.Context) error {
	cfg := app.config

	app.connection = connection.NewConnectionManager(&cfg.Chain, app.metrics)
	if err := app.connection.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to node: %w", err)
	}
	app.client = connection.NewChainClient(app.connection, connection.PolicyFromConfig(&cfg.Chain), app.metrics)

	transactor, err := signer.New(cfg.Signer, cfg.Chain, app.client)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	app.transactor = transactor

	proxy := config.Address(cfg.Contracts.Proxy)
	if app.proxy, err = contracts.NewProxyAdmin(proxy, app.client, transactor, app.metrics); err != nil {
		return err
	}
	if app.escrow, err = contracts.NewRewardEscrow(proxy, app.client, transactor, app.metrics); err != nil {
		return err
	}
	if app.timelock, err = contracts.NewSharesTimeLock(config.Address(cfg.Contracts.Timelock), app.client, transactor, app.metrics); err != nil {
		return err
	}
	if app.veDOUGH, err = contracts.NewERC20(config.Address(cfg.Contracts.VeDOUGH), app.client, app.metrics); err != nil {
		return err
	}

	app.logger.WithFields(logrus.Fields{
		"node":   cfg.Chain.NodeURL,
		"proxy":  proxy.Hex(),
		"signer": cfg.Signer.Mode,
	}).Info("Connected to node")
	return nil
}

// OpenStorage connects the run store. A disabled store yields nil unless
// required is set.
func (app *Application) OpenStorage(required bool) (storage.Storage, error) {
	if !app.config.Storage.Enabled && !required {
		return nil, nil
	}

	store, err := storage.Open(&app.config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.store = storage.NewStorageWithMetrics(store, app.metrics)
	return app.store, nil
}

// Printer builds the console report writer
func (app *Application) Printer(out io.Writer) *report.Printer {
	return report.NewPrinter(out, app.config.Report.Color, app.config.Report.Decimals)
}

// Snapshotter builds the escrow state reader
func (app *Application) Snapshotter() *snapshot.Snapshotter {
	return snapshot.NewSnapshotter(app.escrow, app.client, app.config)
}

// Verifier builds the migration verifier
func (app *Application) Verifier(opts migration.Options) *migration.Verifier {
	return migration.NewVerifier(app.escrow, app.veDOUGH, app.client, app.timelock, opts, app.metrics)
}

// Runner wires the full verification pipeline
func (app *Application) Runner(out io.Writer) (*pipeline.Runner, error) {
	cfg := app.config

	bytecode, err := upgrade.LoadBytecode(cfg.Contracts.ImplementationArtifact)
	if err != nil {
		return nil, err
	}
	store, err := app.OpenStorage(false)
	if err != nil {
		return nil, err
	}

	stages := pipeline.Stages{
		Snapshots: app.Snapshotter(),
		Swapper:   upgrade.NewSwapper(app.proxy, app.transactor, config.Address(cfg.Contracts.Operator), bytecode),
		Verifier:  app.Verifier(migration.OptionsFromConfig(cfg)),
		Holders:   migration.NewHolderSource(cfg.Migration.HoldersFile),
	}
	opts := pipeline.Options{
		Proxy:             config.Address(cfg.Contracts.Proxy),
		DryRun:            cfg.Migration.DryRun,
		FailOnDiscrepancy: cfg.Migration.FailOnDiscrepancy,
	}

	return pipeline.NewRunner(stages, app.Printer(out), store,
		notification.NewNotifier(cfg.Notifications, app.metrics), app.metrics, opts), nil
}

// Close releases the store and the node connection
func (app *Application) Close() {
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}
}
