package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Mode is the inbound update delivery mechanism.
type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
)

type BotConfig struct {
	Token               string        `env:"BOT_TOKEN" validate:"required"`
	ServiceAPIKey       string        `env:"BOT_SERVICE_API_KEY" validate:"required"`
	ServiceURL          string        `env:"BOT_SERVICE_URL" validate:"required,url"`
	ServiceTimeout      time.Duration `env:"BOT_SERVICE_TIMEOUT" env-default:"0s" validate:"gte=0"`
	WebhookDomain       string        `env:"WEBHOOK_DOMAIN"`
	Port                int           `env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
	HealthCheckSchedule string        `env:"HEALTH_CHECK_SCHEDULE" env-default:"@every 5m"`
	LogLevel            string        `env:"LOG_LEVEL" env-default:"info"`
}

// Mode reports webhook delivery when a webhook domain is configured.
func (c BotConfig) Mode() Mode {
	if strings.TrimSpace(c.WebhookDomain) != "" {
		return ModeWebhook
	}
	return ModePolling
}

// Load reads an optional .env file, then the process environment.
func Load() (BotConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return BotConfig{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg BotConfig
	if err := LoadConfig(&cfg); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

func LoadConfig(cfg interface{}) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return Validate(cfg)
}

func MustLoad() BotConfig {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks struct rules and reports every missing required variable at once.
func Validate(cfg interface{}) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", ")))
	}
	return errors.Join(errs...)
}
