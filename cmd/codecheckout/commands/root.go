// Package commands implements the codecheckout command line interface.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"codecheckout/internal/app"
	"codecheckout/internal/cache"
	"codecheckout/internal/config"
	"codecheckout/internal/infrastructure"
	"codecheckout/pkg/codecheckout"
	"codecheckout/pkg/contracts"
	"codecheckout/pkg/contracts/domain"
)

// ErrLicenseInvalid is returned by validate when the license is rejected
var ErrLicenseInvalid = errors.New("license is not valid")

// Client is the license client surface the commands drive
type Client interface {
	Validate(ctx context.Context, req codecheckout.ValidateRequest) codecheckout.ValidateResult
	LogEvent(ctx context.Context, ev codecheckout.Event) domain.AnalyticsEventResponse
	GenerateCheckoutURL(ctx context.Context, p codecheckout.CheckoutParams) (domain.CheckoutSession, error)
	ClearCache(ctx context.Context)
	MachineID(ctx context.Context) (string, error)
	CacheBackend() cache.Kind
	Close(ctx context.Context) error
}

// Server runs the local license server until ctx is done
type Server interface {
	Run(ctx context.Context) error
}

// Deps builds the client and server from the loaded configuration
type Deps struct {
	NewClient func(cfg *config.Config, logger *slog.Logger) (Client, error)
	NewServer func(cfg *config.Config, logger *slog.Logger) (Server, error)
}

// DefaultDeps wires the real client and server
func DefaultDeps() Deps {
	return Deps{
		NewClient: func(cfg *config.Config, logger *slog.Logger) (Client, error) {
			client, err := codecheckout.New(cfg, codecheckout.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		NewServer: func(cfg *config.Config, logger *slog.Logger) (Server, error) {
			application, err := app.NewApplication(cfg, logger)
			if err != nil {
				return nil, err
			}
			return application, nil
		},
	}
}

// CLI represents the command line interface for codecheckout
type CLI struct {
	deps    Deps
	rootCmd *cobra.Command

	configPath string
	softwareID string
	baseURL    string
	cacheMode  string
	logLevel   string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// New creates a new CLI instance
func New(deps Deps) *CLI {
	c := &CLI{deps: deps}

	rootCmd := &cobra.Command{
		Use:           "codecheckout",
		Short:         "Validate software licenses against the codecheckout authority",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       contracts.Version,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.loadConfig()
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, built: %s)\n",
		contracts.GitCommit,
		contracts.BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&c.softwareID, "software-id", "", "Software id registered with the authority")
	flags.StringVar(&c.baseURL, "base-url", "", "License authority base URL")
	flags.StringVar(&c.cacheMode, "cache", "", "Cache backend: auto, memory or file")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(c.newValidateCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newCheckoutCmd())
	rootCmd.AddCommand(c.newEventCmd())
	rootCmd.AddCommand(c.newMachineIDCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// Close releases the log file opened for the command, if any
func (c *CLI) Close() error {
	if c.logCloser == nil {
		return nil
	}
	return c.logCloser.Close()
}

// Logger returns the command logger, or nil before configuration is loaded
func (c *CLI) Logger() *slog.Logger {
	return c.logger
}

// loadConfig resolves file and environment configuration, then applies flags
func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	cfg.Client = cfg.Client.WithOverrides(config.Overrides{
		SoftwareID: c.softwareID,
		BaseURL:    c.baseURL,
	})
	if c.cacheMode != "" {
		cfg.Cache.Backend = c.cacheMode
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger, closer, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger.With(slog.String("service", cfg.Telemetry.ServiceName))
	c.logCloser = closer
	return nil
}

// withClient runs fn against a fresh client and drains it afterwards
func (c *CLI) withClient(ctx context.Context, fn func(Client) error) error {
	client, err := c.deps.NewClient(c.cfg, c.logger)
	if err != nil {
		return err
	}
	runErr := fn(client)
	return errors.Join(runErr, client.Close(ctx))
}

// printJSON writes v as indented JSON to the command output
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
