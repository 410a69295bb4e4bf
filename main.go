package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielhkuo/propjockey/cliparse"
	"github.com/danielhkuo/propjockey/logger"
	"github.com/danielhkuo/propjockey/router"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "propjockey",
	Short: "Demand-driven property computation feed",
	Long: `propjockey lets users request computation of a property on catalog
entries, serves a ranked feed that blends requested entries with entries
missing or already having the property, and notifies requesters once the
property is available.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Complete fulfilled demand and notify requesters",
	Long: `sweep runs one completion and notification pass and exits. Schedule
it externally (cron, systemd timer) or set sweep.schedule for serve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		_, err = app.sweep.Run(cmd.Context())
		return err
	},
}

var prioritizeCmd = &cobra.Command{
	Use:   "prioritize",
	Short: "Push demand counts to linked workflow jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		_, err = app.prioritizer.Run(cmd.Context())
		return err
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create tables or indexes for the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// Opening a SQL or mongo store creates its schema.
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		log.Info().Str("driver", cfg.Store.Driver).Msg("Schema ready")
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <entry-id> <job-id>",
	Short: "Record the workflow job computing an entry's property",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		if err := app.link(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		log.Info().Str("entry_id", args[0]).Str("job_id", args[1]).Msg("Workflow linked")
		return nil
	},
}

var tokenCookie bool

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Issue a session token for a user",
	Long: `token signs a session for user valid for auth.session_ttl and prints
it, or with --cookie the matching Set-Cookie header value. Sign-in flows
hand out the same tokens.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, cookie, err := issueSession(cfg, args[0])
		if err != nil {
			return err
		}
		out := token
		if tokenCookie {
			out = cookie.String()
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cliparse.Load(v, cfgFile)
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./propjockey.yaml)")
	if err := cliparse.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	tokenCmd.Flags().BoolVar(&tokenCookie, "cookie", false, "print a Set-Cookie header value instead of the bare token")
	rootCmd.AddCommand(serveCmd, sweepCmd, prioritizeCmd, linkCmd, tokenCmd, schemaCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("propjockey failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (cliparse.Config, error) {
	cfg, err := cliparse.Load(v, cfgFile)
	if err != nil {
		return cfg, fmt.Errorf("parse configuration: %w", err)
	}
	logger.SetGlobal(logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}))
	return cfg, nil
}

func serve(ctx context.Context, cfg cliparse.Config) error {
	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	scheduler, err := schedule(ctx, app, cfg.Sweep.Schedule)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	server := http.Server{
		Handler:           router.NewRouter(app.feedHandler, app.votingHandler, cfg),
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Store.Driver).Msg("Listening")
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server closed: %w", err)
	}
	log.Info().Msg("Server closed")
	return nil
}

// schedule registers the sweep and prioritizer on the cron expression
// expr. An empty expr disables in-process scheduling. A run still in progress makes the next
// tick a no-op.
func schedule(ctx context.Context, app *application, expr string) (*cron.Cron, error) {
	if expr == "" {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
	_, err := c.AddFunc(expr, func() {
		if _, err := app.sweep.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled sweep failed")
		}
		if _, err := app.prioritizer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled prioritize failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep.schedule %q: %w", expr, err)
	}
	log.Info().Str("schedule", expr).Msg("Sweep scheduled")
	return c, nil
}

// cronLogger adapts the zerolog global logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
