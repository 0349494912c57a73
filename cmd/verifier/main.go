package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/connection"
	"github.com/smartdevs17/edough-upgrade-check/internal/migration"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/report"
	"github.com/smartdevs17/edough-upgrade-check/internal/server"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "upgrade-check",
	Short: "eDOUGH proxy upgrade and veDOUGH migration checker",
	Long: `Swaps the eDOUGH reward escrow implementation on a forked node, compares the escrow
state before and after, and migrates every holder's maturable vesting entries into
veDOUGH while checking the balance deltas.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full upgrade and migration check",
	RunE:  runCheck,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the current escrow state",
	RunE:  runSnapshot,
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility [address...]",
	Short: "Compute maturable amounts without sending transactions",
	RunE:  runEligibility,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs, health and metrics over HTTP",
	RunE:  runServe,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE:  runListRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteRun,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration is valid!")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Node: %s\n", cfg.Chain.NodeURL)
		fmt.Fprintf(out, "Proxy: %s\n", config.Address(cfg.Contracts.Proxy).Hex())
		fmt.Fprintf(out, "Signer: %s\n", cfg.Signer.Mode)
		fmt.Fprintf(out, "Holders: %s\n", cfg.Migration.HoldersFile)
		if cfg.Storage.Enabled {
			fmt.Fprintf(out, "Storage: %s\n", cfg.Storage.Type)
		} else {
			fmt.Fprintln(out, "Storage: disabled")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "upgrade-check %s\n", AppVersion)
	},
}

// loadConfig reads configuration and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = viper.GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to load configuration", err.Error())
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid configuration", err.Error())
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("rpc-url") {
		cfg.Chain.NodeURL, _ = flags.GetString("rpc-url")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("holders") {
		cfg.Migration.HoldersFile, _ = flags.GetString("holders")
	}
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("continue-on-error") {
		continueOnError, _ := flags.GetBool("continue-on-error")
		cfg.Migration.FailFast = !continueOnError
	}
	if flags.Changed("no-color") {
		noColor, _ := flags.GetBool("no-color")
		cfg.Report.Color = !noColor
	}
}

// setup loads configuration and builds the application with a context that
// SIGINT and SIGTERM cancel.
func setup(cmd *cobra.Command) (context.Context, *Application, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	app, err := NewApplication(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cleanup := func() {
		stop()
		app.Close()
	}
	return ctx, app, cleanup, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, app, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.ConnectChain(ctx); err != nil {
		return err
	}
	runner, err := app.Runner(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	run, err := runner.Run(ctx)
	if run != nil {
		app.logger.WithField("run_id", run.ID).Info("Run recorded")
	}
	return err
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, app, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.ConnectChain(ctx); err != nil {
		return err
	}

	fields, _ := cmd.Flags().GetStringSlice("fields")
	if len(fields) == 0 {
		fields = app.config.Snapshot.PreviousFields
	}
	snap, err := app.Snapshotter().Take(ctx, "current", fields)
	if err != nil {
		return err
	}
	app.Printer(cmd.OutOrStdout()).PrintSnapshot("Current state:", snap)
	return nil
}

func runEligibility(cmd *cobra.Command, args []string) error {
	ctx, app, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	holders, err := holderArgs(args, app.config.Migration.HoldersFile)
	if err != nil {
		return err
	}
	if err := app.ConnectChain(ctx); err != nil {
		return err
	}

	opts := migration.OptionsFromConfig(app.config)
	opts.DryRun = true
	result, err := app.Verifier(opts).Verify(ctx, holders)
	if result != nil {
		app.Printer(cmd.OutOrStdout()).PrintEligibility(result.Holders, result.TotalStaked)
	}
	return err
}

func holderArgs(args []string, file string) ([]common.Address, error) {
	if len(args) == 0 {
		return migration.NewHolderSource(file).Load()
	}
	holders := make([]common.Address, 0, len(args))
	for _, arg := range args {
		address, err := utils.ParseAddress(arg)
		if err != nil {
			return nil, err
		}
		holders = append(holders, address)
	}
	return holders, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, app, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := app.OpenStorage(true)
	if err != nil {
		return err
	}
	app.connection = connection.NewConnectionManager(&app.config.Chain, app.metrics)

	srv := server.NewHTTPServer(&app.config.Server, store, app.connection, app.metrics, AppVersion)
	return srv.Run(ctx)
}

func openStore(cmd *cobra.Command) (context.Context, *Application, storage.Storage, func(), error) {
	ctx, app, cleanup, err := setup(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	store, err := app.OpenStorage(true)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, err
	}
	return ctx, app, store, cleanup, nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	ctx, app, store, cleanup, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	runs, err := store.ListRuns(ctx, storage.RunFilter{
		Status: models.RunStatus(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}

	writeRunsTable(cmd.OutOrStdout(), runs, app.config.Report.Decimals)
	return nil
}

func writeRunsTable(w io.Writer, runs []models.RunSummary, decimals int32) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Started", "Status", "Dry Run", "Holders", "Discrepancies", "Failed", "Total Staked"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			string(run.Status),
			strconv.FormatBool(run.DryRun),
			strconv.Itoa(run.HolderCount),
			strconv.Itoa(run.DiscrepancyCount),
			strconv.Itoa(run.FailedHolderCount),
			report.FormatAmount(parseAmount(run.TotalStaked), decimals),
		})
	}
	table.Render()
}

func parseAmount(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func runShowRun(cmd *cobra.Command, args []string) error {
	ctx, app, store, cleanup, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	app.Printer(cmd.OutOrStdout()).Print(run)
	return nil
}

func runDeleteRun(cmd *cobra.Command, args []string) error {
	ctx, _, store, cleanup, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.DeleteRun(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("rpc-url", "", "JSON-RPC node URL")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	runCmd.Flags().String("holders", "", "holder address CSV file")
	runCmd.Flags().Bool("dry-run", false, "compute eligibility without migrating")
	runCmd.Flags().Bool("continue-on-error", false, "record failed holders and keep going")
	runCmd.Flags().Bool("no-color", false, "disable colored output")

	snapshotCmd.Flags().StringSlice("fields", nil, "escrow view accessors to read")
	snapshotCmd.Flags().Bool("no-color", false, "disable colored output")

	eligibilityCmd.Flags().String("holders", "", "holder address CSV file")
	eligibilityCmd.Flags().Bool("continue-on-error", false, "record failed holders and keep going")
	eligibilityCmd.Flags().Bool("no-color", false, "disable colored output")

	runsCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	runsCmd.Flags().String("status", "", "only runs with this status (completed, failed)")
	runsCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsCmd.Flags().Int("offset", 0, "number of runs to skip")
	runsCmd.AddCommand(runsShowCmd, runsDeleteCmd)

	configCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(runCmd, snapshotCmd, eligibilityCmd, serveCmd, runsCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
