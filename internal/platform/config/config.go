package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultTossBaseURL     = "https://api.tosspayments.com/v1/payments"
	defaultGatewayTimeout  = 10 * time.Second
	defaultSweepInterval   = time.Minute
	defaultConsumerRetries = 3
	defaultConsumerBackoff = 2 * time.Second

	defaultPointAccrualTopic            = "point.accrual"
	defaultPointAccrualSubscription     = "point.accrual.worker"
	defaultCouponBatchTopic             = "coupon.birthday"
	defaultCouponBatchSubscription      = "coupon.birthday.worker"
	defaultCouponDeadLetterTopic        = "coupon.birthday.dead"
	defaultCouponDeadLetterSubscription = "coupon.birthday.dead.worker"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PSP       PSPConfig
	PubSub    PubSubConfig
	Scheduler SchedulerConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig collects settings for payment providers.
type PSPConfig struct {
	TossSecretKey  string
	TossBaseURL    string
	StripeAPIKey   string
	GatewayTimeout time.Duration
}

// PubSubConfig names the topics and subscriptions used by background workers.
type PubSubConfig struct {
	ProjectID                    string
	PointAccrualTopic            string
	PointAccrualSubscription     string
	CouponBatchTopic             string
	CouponBatchSubscription      string
	CouponDeadLetterTopic        string
	CouponDeadLetterSubscription string
	ConsumerMaxAttempts          int
	ConsumerBackoff              time.Duration
}

// SchedulerConfig controls the scheduled background jobs. The birthday batch
// stays disabled until a coupon id is configured.
type SchedulerConfig struct {
	SweepInterval    time.Duration
	BirthdayCouponID string
}

// Load reads configuration from the optional .env file and the process environment.
func Load() (Config, error) {
	values, err := EnvironmentValues()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         lookup(values, "PORT", defaultPort),
			ReadTimeout:  lookupDuration(values, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: lookupDuration(values, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  lookupDuration(values, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup(values, "FIRESTORE_PROJECT_ID", lookup(values, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: lookup(values, "FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			TossSecretKey:  lookup(values, "TOSS_SECRET_KEY", ""),
			TossBaseURL:    lookup(values, "TOSS_BASE_URL", defaultTossBaseURL),
			StripeAPIKey:   lookup(values, "STRIPE_API_KEY", ""),
			GatewayTimeout: lookupDuration(values, "PSP_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:                    lookup(values, "PUBSUB_PROJECT_ID", lookup(values, "GOOGLE_CLOUD_PROJECT", "")),
			PointAccrualTopic:            lookup(values, "POINT_ACCRUAL_TOPIC", defaultPointAccrualTopic),
			PointAccrualSubscription:     lookup(values, "POINT_ACCRUAL_SUBSCRIPTION", defaultPointAccrualSubscription),
			CouponBatchTopic:             lookup(values, "COUPON_BATCH_TOPIC", defaultCouponBatchTopic),
			CouponBatchSubscription:      lookup(values, "COUPON_BATCH_SUBSCRIPTION", defaultCouponBatchSubscription),
			CouponDeadLetterTopic:        lookup(values, "COUPON_DEAD_LETTER_TOPIC", defaultCouponDeadLetterTopic),
			CouponDeadLetterSubscription: lookup(values, "COUPON_DEAD_LETTER_SUBSCRIPTION", defaultCouponDeadLetterSubscription),
			ConsumerMaxAttempts:          lookupInt(values, "CONSUMER_MAX_ATTEMPTS", defaultConsumerRetries),
			ConsumerBackoff:              lookupDuration(values, "CONSUMER_BACKOFF", defaultConsumerBackoff),
		},
		Scheduler: SchedulerConfig{
			SweepInterval:    lookupDuration(values, "SHIPMENT_SWEEP_INTERVAL", defaultSweepInterval),
			BirthdayCouponID: lookup(values, "BIRTHDAY_COUPON_ID", ""),
		},
	}

	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		return Config{}, fmt.Errorf("config: FIRESTORE_PROJECT_ID is required")
	}

	return cfg, nil
}

// EnvironmentValues merges the optional .env file with the process environment.
// Real environment variables win over file entries.
func EnvironmentValues() (map[string]string, error) {
	values := map[string]string{}

	file, err := os.Open(defaultEnvFile)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", defaultEnvFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: open %s: %w", defaultEnvFile, err)
	}

	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		values[key] = value
	}

	return values, nil
}

func lookup(values map[string]string, key, fallback string) string {
	if v, ok := values[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func lookupDuration(values map[string]string, key string, fallback time.Duration) time.Duration {
	raw := lookup(values, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func lookupInt(values map[string]string, key string, fallback int) int {
	raw := lookup(values, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
