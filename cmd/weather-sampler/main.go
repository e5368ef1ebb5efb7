package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/weather-sampler/internal/api/http"
	"github.com/i474232898/weather-sampler/internal/config"
	"github.com/i474232898/weather-sampler/internal/metrics"
	"github.com/i474232898/weather-sampler/internal/queue"
	"github.com/i474232898/weather-sampler/internal/sampler"
	"github.com/i474232898/weather-sampler/internal/scheduler"
	"github.com/i474232898/weather-sampler/internal/store"
	"github.com/i474232898/weather-sampler/internal/weather/providers"
)

const serviceName = "weather-sampler"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Err(err).Msg("no .env file loaded")
	}

	// Load configuration. This is the only failure that ends the process.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPromMetrics(reg)

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	provider := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, cfg.Location,
		providers.WithBaseURL(cfg.OpenWeatherURL),
		providers.WithBreaker(providers.BreakerForPeriod(cfg.SamplePeriod)),
	)

	var dialer queue.Dialer
	switch cfg.Broker {
	case config.BrokerKafka:
		dialer = queue.NewKafkaDialer(queue.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.PublishTimeout,
		})
	default:
		dialer = queue.NewRabbitMQDialer(queue.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			Username: cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
			Queue:    cfg.RabbitMQ.Queue,
			AppID:    serviceName,
		})
	}

	publisher := queue.NewPublisher(dialer, cfg.Connect, cfg.PublishTimeout)
	publisher.OnConnectAttempt = recorder.ConnectAttempt

	history := store.NewMemoryStore(cfg.StatusMaxHistory, cfg.StatusMaxAge)

	smp := sampler.New(cfg.Location, provider, publisher,
		sampler.WithRecorder(recorder),
		sampler.WithHistory(history),
	)

	logger.Info().
		Dur("period", cfg.SamplePeriod).
		Str("broker", dialer.Target()).
		Int("connect_attempts", cfg.Connect.Attempts).
		Dur("connect_delay", cfg.Connect.Delay).
		Msg("starting weather sampler")

	var app *fiber.App
	if cfg.StatusAddr != "" {
		app = newStatusApp(cfg, history, reg)
		go func() {
			if err := app.Listen(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	// First cycle runs immediately, then every period.
	sched := scheduler.New(cfg.SamplePeriod, smp)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// Wait for termination signal
	<-ctx.Done()
	logger.Info().Msg("shutting down weather sampler")

	if clean := sched.Stop(cfg.ShutdownGrace); !clean {
		logger.Warn().Dur("grace", cfg.ShutdownGrace).Msg("in-flight cycle cancelled after grace period")
	}

	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing broker session")
	}

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("error during status server shutdown")
		}
	}

	logger.Info().Msg("weather sampler stopped")
}

func newStatusApp(cfg *config.AppConfig, history *store.MemoryStore, gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	httpapi.RegisterRoutes(app, serviceName, cfg.Location, history, gatherer)
	return app
}
