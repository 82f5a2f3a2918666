// Package daemon provides the web service daemon for cargodocs.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cargodocs/cargodocs/internal/cli"
	"github.com/cargodocs/cargodocs/internal/config"
	"github.com/cargodocs/cargodocs/internal/constants"
	"github.com/cargodocs/cargodocs/internal/docgen"
	"github.com/cargodocs/cargodocs/internal/docservices"
	"github.com/cargodocs/cargodocs/internal/extract"
	"github.com/cargodocs/cargodocs/internal/history"
	"github.com/cargodocs/cargodocs/internal/normalize"
	"github.com/cargodocs/cargodocs/internal/pipeline"
	"github.com/cargodocs/cargodocs/internal/webservice"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Daemon   webservice.StaticConfig
	Services servicesConfig
	Model    modelConfig
	DB       history.Config

	MigrationsDir string
}

// servicesConfig holds the remote PDF services API configuration.
// When ClientID or AccessToken is empty, extraction and generation run locally.
type servicesConfig struct {
	Host        string
	ClientID    string
	AccessToken string
}

// modelConfig holds the normalizer model pass configuration.
// When APIKey is empty, only the rules pass runs.
type modelConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.WebServiceCmdName,
		Short:         "cargodocs web service",
		Long:          "cargodocs web service accepting shipping document PDFs and returning generated, filled documents.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.WebServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installMigrateCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ConfigPath: "",
		WorkDir:    constants.DefaultServiceWorkDir,

		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   15 * time.Minute,
		RequestTimeout: 12 * time.Minute,
		MaxHeaderBytes: 1 << 13, // 8 KB
		MaxUploadBytes: 1 << 25, // 32 MB

		ListenPort:  8080,
		MetricsPort: 2112,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "emit logs in JSON format")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.Daemon.ConfigPath, "daemon-config", defaultConf.ConfigPath, "path to the configuration file")
	cmd.Flags().StringVar(&app.config.Daemon.WorkDir, "work-dir", defaultConf.WorkDir, "directory for per-job staging data")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxUploadBytes, "max-upload-bytes", defaultConf.MaxUploadBytes, "maximum upload bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	// PDF services API flags
	cmd.Flags().StringVar(&app.config.Services.Host, "services-host", "", "base URL of the PDF services API")
	cmd.Flags().StringVar(&app.config.Services.ClientID, "services-client-id", "", "client ID for the PDF services API")
	cmd.Flags().StringVar(&app.config.Services.AccessToken, "services-access-token", "", "access token for the PDF services API")

	// Normalizer model flags
	cmd.Flags().StringVar(&app.config.Model.Endpoint, "model-endpoint", "", "chat completions endpoint for the normalizer model pass")
	cmd.Flags().StringVar(&app.config.Model.APIKey, "model-api-key", "", "API key for the normalizer model pass")
	cmd.Flags().StringVar(&app.config.Model.Model, "model-name", "", "model name for the normalizer model pass")

	// History database flags
	cmd.Flags().StringVar(&app.config.DB.Host, "db-host", "", "host of the history database, empty disables history")
	cmd.Flags().IntVar(&app.config.DB.Port, "db-port", 5432, "port of the history database")
	cmd.Flags().StringVar(&app.config.DB.User, "db-user", "", "user of the history database")
	cmd.Flags().StringVar(&app.config.DB.Password, "db-password", "", "password of the history database")
	cmd.Flags().StringVar(&app.config.DB.DBName, "db-name", "", "name of the history database")
	cmd.Flags().StringVar(&app.config.DB.SSLMode, "db-sslmode", "prefer", "sslmode of the history database")

	err := cmd.MarkFlagFilename("daemon-config")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}

	err = cmd.MarkFlagDirname("work-dir")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark work-dir flag as dirname: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	a.config.Daemon.ConfigPath, err = filepath.Abs(a.config.Daemon.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for config file: %v", err)
	}
	dConf := a.config.Daemon
	cm := config.New(dConf.ConfigPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	var services *docservices.Client
	if a.config.Services.ClientID != "" && a.config.Services.AccessToken != "" {
		services, err = docservices.New(docservices.Config{
			Host:        a.config.Services.Host,
			ClientID:    a.config.Services.ClientID,
			AccessToken: a.config.Services.AccessToken,
		})
		if err != nil {
			return fmt.Errorf("failed to create services client: %v", err)
		}
	} else {
		slog.Info("No PDF services credentials, extraction and generation run locally")
	}

	var extractor pipeline.Extractor
	var remoteGen *docgen.Remote
	if services != nil {
		extractor = extract.NewRemote(services, nil)
		remoteGen = docgen.NewRemote(services, nil)
	} else {
		extractor = extract.NewLocal(nil)
	}

	var filler normalize.Filler
	if a.config.Model.APIKey != "" {
		filler = normalize.NewModelFiller(normalize.ModelConfig{
			Endpoint: a.config.Model.Endpoint,
			APIKey:   a.config.Model.APIKey,
			Model:    a.config.Model.Model,
		})
	} else {
		slog.Info("No model API key, normalization uses the rules pass only")
	}

	var recorder pipeline.Recorder
	if a.config.DB.Host != "" {
		db, err := history.Connect(context.Background(), a.config.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to history database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close history database", "err", err)
			}
		}()
		recorder = db
	} else {
		slog.Info("No history database configured, job history is disabled")
	}

	pipe, err := pipeline.New(dConf.WorkDir, extractor, normalize.New(filler), docgen.NewAuto(remoteGen), recorder, reg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %v", err)
	}

	a.daemon, err = webservice.New(context.Background(), cm, pipe, reg, dConf)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
