package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weather-sampler/internal/retry"
)

// placeholderAPIKey is what deployment templates ship with.
const placeholderAPIKey = "YOUR_API_KEY_HERE"

const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

var validate = validator.New()

type AppConfig struct {
	OpenWeatherAPIKey string `validate:"required"`
	OpenWeatherURL    string `validate:"required,url"`
	Location          string `validate:"required"`

	// SamplePeriod is the time between scheduled ticks.
	SamplePeriod time.Duration `validate:"gte=1s"`
	HTTPTimeout  time.Duration `validate:"gt=0s"`

	Broker   string `validate:"oneof=rabbitmq kafka"`
	RabbitMQ RabbitMQConfig
	Kafka    KafkaConfig

	Connect        retry.Policy
	PublishTimeout time.Duration `validate:"gt=0s"`

	ShutdownGrace time.Duration `validate:"gte=0s"`

	// Status API; empty address disables it.
	StatusAddr       string
	StatusMaxHistory int           `validate:"gte=0"`
	StatusMaxAge     time.Duration `validate:"gte=0s"`

	LogLevel string `validate:"oneof=trace debug info warn error"`
}

type RabbitMQConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gte=1,lte=65535"`
	User     string
	Password string
	VHost    string
	Queue    string `validate:"required"`
}

type KafkaConfig struct {
	Brokers []string `validate:"required_if=Enabled true,dive,hostname_port"`
	Topic   string   `validate:"required_if=Enabled true"`
	Enabled bool
}

// Load reads configuration from environment with sensible defaults. Unlike
// unset values, values that are set but unparsable are errors.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherURL:    getenvDefault("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5/weather"),
		Location:          strings.TrimSpace(getenvDefault("CITY_NAME", "Tokyo")),
		Broker:            strings.ToLower(getenvDefault("BROKER_KIND", BrokerRabbitMQ)),
		StatusAddr:        os.Getenv("STATUS_ADDR"),
		LogLevel:          strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
	}
	if _, ok := os.LookupEnv("STATUS_ADDR"); !ok {
		cfg.StatusAddr = ":8080"
	}

	if cfg.OpenWeatherAPIKey == "" || cfg.OpenWeatherAPIKey == placeholderAPIKey {
		return nil, errors.New("OPENWEATHER_API_KEY is required; get one at https://openweathermap.org/api")
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	periodSeconds, err := getenvInt("SAMPLE_PERIOD", 3600)
	collect(err)
	cfg.SamplePeriod = time.Duration(periodSeconds) * time.Second

	cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second)
	collect(err)

	cfg.RabbitMQ = RabbitMQConfig{
		Host:     getenvDefault("RABBITMQ_HOST", "rabbitmq"),
		User:     getenvDefault("RABBITMQ_USER", "guest"),
		Password: getenvDefault("RABBITMQ_PASSWORD", "guest"),
		VHost:    getenvDefault("RABBITMQ_VHOST", "/"),
		Queue:    getenvDefault("RABBITMQ_QUEUE", "weather_data"),
	}
	cfg.RabbitMQ.Port, err = getenvInt("RABBITMQ_PORT", 5672)
	collect(err)

	cfg.Kafka = KafkaConfig{
		Brokers: splitCSV(getenvDefault("KAFKA_BROKERS", "localhost:9092")),
		Topic:   getenvDefault("KAFKA_TOPIC", cfg.RabbitMQ.Queue),
		Enabled: cfg.Broker == BrokerKafka,
	}

	cfg.Connect.Attempts, err = getenvInt("CONNECT_ATTEMPTS", 5)
	collect(err)
	cfg.Connect.Delay, err = getenvDuration("CONNECT_DELAY", 5*time.Second)
	collect(err)
	cfg.Connect.Strategy = retry.Strategy(strings.ToLower(getenvDefault("CONNECT_BACKOFF", string(retry.Fixed))))
	collect(cfg.Connect.Validate())

	cfg.PublishTimeout, err = getenvDuration("PUBLISH_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.ShutdownGrace, err = getenvDuration("SHUTDOWN_GRACE", 10*time.Second)
	collect(err)

	cfg.StatusMaxHistory, err = getenvInt("STATUS_MAX_HISTORY", 48)
	collect(err)
	cfg.StatusMaxAge, err = getenvDuration("STATUS_MAX_AGE", 48*time.Hour)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
