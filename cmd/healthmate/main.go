package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthmate/healthmate/internal/config"
	"github.com/healthmate/healthmate/internal/domain/account"
	"github.com/healthmate/healthmate/internal/domain/assistant"
	"github.com/healthmate/healthmate/internal/domain/diagnostics"
	"github.com/healthmate/healthmate/internal/domain/doctor"
	"github.com/healthmate/healthmate/internal/domain/records"
	"github.com/healthmate/healthmate/internal/domain/scheduling"
	"github.com/healthmate/healthmate/internal/domain/symptoms"
	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/internal/platform/blobstore"
	"github.com/healthmate/healthmate/internal/platform/db"
	"github.com/healthmate/healthmate/internal/platform/messaging"
	"github.com/healthmate/healthmate/internal/platform/middleware"
	"github.com/healthmate/healthmate/internal/platform/notification"
	"github.com/healthmate/healthmate/internal/platform/telemetry"
)

const version = "0.1.0"

// requestTimeout bounds non-advisory requests.
const requestTimeout = 30 * time.Second

// isAdvisoryPath reports whether path reaches a handler that calls the
// completion service, which carries its own timeout.
func isAdvisoryPath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/v1/chat"):
		return true
	case path == "/api/v1/symptom-checks" || path == "/api/v1/symptom-checks/":
		return true
	case strings.HasPrefix(path, "/api/v1/diagnoses/") && strings.HasSuffix(path, "/generate-treatment"):
		return true
	}
	return false
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "healthmate",
		Short:        "HealthMate patient portal API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(jobsCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("target")

			ctx := context.Background()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).UpTo(ctx, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	upCmd.Flags().Int("target", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	symptomsCmd := &cobra.Command{
		Use:   "symptoms",
		Short: "Upsert the symptom catalog from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer f.Close()

			entries, err := symptoms.LoadCatalog(f)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, cfg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			app, err := newApp(ctx, cfg, pool, logger)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			n, err := app.symptoms.SeedCatalog(ctx, entries)
			if err != nil {
				return fmt.Errorf("seed symptoms: %w", err)
			}
			fmt.Printf("Upserted %d symptom(s).\n", n)
			return nil
		},
	}
	symptomsCmd.Flags().String("file", "./seeds/symptoms.yaml", "Path to the symptom catalog")
	cmd.AddCommand(symptomsCmd)

	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run scheduled maintenance jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "complete-appointments",
		Short: "Mark confirmed appointments that have ended as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, app *application) error {
				n, err := app.scheduling.CompleteElapsed(ctx)
				if err != nil {
					return err
				}
				app.logger.Info().Int64("completed", n).Msg("appointment sweep finished")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "send-reminders",
		Short: "Email patients about confirmed appointments in the next 24 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, app *application) error {
				n, err := app.scheduling.SendReminders(ctx)
				if err != nil {
					return err
				}
				app.logger.Info().Int("sent", n).Msg("appointment reminders finished")
				return nil
			})
		},
	})

	return cmd
}

func runJob(job func(ctx context.Context, app *application) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := newLogger(cfg)
	app, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer app.close(context.Background())

	return job(ctx, app)
}

func connect(ctx context.Context) (*pgxpool.Pool, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return pool, cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// application holds the services shared by the server and the CLI jobs.
type application struct {
	logger    zerolog.Logger
	telemetry *telemetry.Provider
	metrics   *telemetry.Metrics
	events    messaging.Publisher
	closers   []func() error

	accounts    *account.Service
	doctors     *doctor.Service
	scheduling  *scheduling.Service
	records     *records.Service
	symptoms    *symptoms.Service
	diagnostics *diagnostics.Service
	assistant   *assistant.Service
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &application{logger: logger}

	provider, err := telemetry.InitProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = provider
	if a.metrics, err = telemetry.NewMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a.events = newPublisher(cfg, logger)
	if c, ok := a.events.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	blobs, err := blobstore.New(blobstore.Options{
		Backend:  cfg.StorageBackend,
		Dir:      cfg.StorageDir,
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
		MaxSize:  cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	mailer := notification.NewMailer(newEmailSender(cfg, logger), nil)
	advisor := advisory.New(newCompleter(cfg), logger, a.metrics, cfg.AdvisoryTimeout)
	tx := db.NewTransactor(pool)

	a.doctors = doctor.NewService(doctor.NewProfileRepoPG(pool), doctor.NewReviewRepoPG(pool), tx, blobs, logger)
	a.accounts = account.NewService(account.NewAccountRepoPG(pool), a.doctors, tx)
	a.scheduling = scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), tx, a.accounts,
		a.events, mailer, a.metrics, logger)
	a.records = records.NewService(records.NewRecordRepoPG(pool), blobs, logger)
	a.symptoms = symptoms.NewService(symptoms.NewCatalogRepoPG(pool), symptoms.NewUserSymptomRepoPG(pool),
		symptoms.NewCheckRepoPG(pool), tx, advisor, a.accounts, logger)
	a.diagnostics = diagnostics.NewService(diagnostics.NewDiagnosisRepoPG(pool), diagnostics.NewTreatmentRepoPG(pool),
		diagnostics.NewFollowUpRepoPG(pool), tx, advisor, a.accounts, a.accounts, a.symptoms, logger)
	a.assistant = assistant.NewService(assistant.NewChatLogRepoPG(pool), advisor, cfg.ChatHistoryWindow, logger)

	return a, nil
}

func (a *application) close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
}

// newCompleter returns nil when no API key is configured so that the
// advisor answers with its fallbacks.
func newCompleter(cfg *config.Config) advisory.Completer {
	if !cfg.AdvisoryEnabled() {
		return nil
	}
	return advisory.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SendGridAPIKey == "" {
		return notification.NewLogSender(logger)
	}
	return notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
}

// newPublisher connects to RabbitMQ when configured. Events are dropped when
// the broker is not configured or unreachable at startup.
func newPublisher(cfg *config.Config, logger zerolog.Logger) messaging.Publisher {
	if cfg.RabbitMQURL == "" {
		return messaging.NopPublisher{}
	}
	p, err := messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable; appointment events will be dropped")
		return messaging.NopPublisher{}
	}
	return p
}

func runServer() error {
	ctx := context.Background()
	pool, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := newLogger(cfg)
	logger.Info().Msg("connected to database")

	app, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise services")
		return err
	}
	defer app.close(context.Background())

	e := newServer(cfg, app, logger)
	e.GET("/health/db", db.HealthHandler(pool, logger))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the middleware chain and every
// API route.
func newServer(cfg *config.Config, app *application, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.Middleware(app.metrics))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevAccountHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimitBytes(1<<20, cfg.MaxUploadBytes))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(auth.AccountMiddleware(app.accounts))
	api.Use(middleware.Audit(logger))
	api.Use(middleware.RequestTimeout(requestTimeout, isAdvisoryPath))

	account.NewHandler(app.accounts).RegisterRoutes(api)
	doctor.NewHandler(app.doctors).RegisterRoutes(api)
	scheduling.NewHandler(app.scheduling).RegisterRoutes(api)
	records.NewHandler(app.records).RegisterRoutes(api)
	symptoms.NewHandler(app.symptoms).RegisterRoutes(api)
	diagnostics.NewHandler(app.diagnostics).RegisterRoutes(api)
	assistant.NewHandler(app.assistant).RegisterRoutes(api)

	return e
}
