/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables (and an optional
 * .env file), and validates that every setting the payment flow depends on is
 * present before the service starts.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment-service.
// It is loaded once at startup and passed by value to the components that need it.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	ClerkJWKSURL       string `mapstructure:"CLERK_JWKS_URL"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	PaytmMerchantID      string `mapstructure:"PAYTM_MERCHANT_ID"`
	PaytmMerchantKey     string `mapstructure:"PAYTM_MERCHANT_KEY"`
	PaytmWebsite         string `mapstructure:"PAYTM_WEBSITE"`
	PaytmFallbackWebsite string `mapstructure:"PAYTM_FALLBACK_WEBSITE"`
	PaytmCallbackURL     string `mapstructure:"PAYTM_CALLBACK_URL"`
	PaytmChannelID       string `mapstructure:"PAYTM_CHANNEL_ID"`
	PaytmIndustryType    string `mapstructure:"PAYTM_INDUSTRY_TYPE"`
	PaytmGatewayBaseURL  string `mapstructure:"PAYTM_GATEWAY_BASE_URL"`
	PaytmCurrency        string `mapstructure:"PAYTM_CURRENCY"`
	PaytmTimeoutSeconds  int    `mapstructure:"PAYTM_TIMEOUT_SECONDS"`

	SubscriptionPeriodDays    int    `mapstructure:"SUBSCRIPTION_PERIOD_DAYS"`
	SubscriptionLapseSchedule string `mapstructure:"SUBSCRIPTION_LAPSE_SCHEDULE"`

	RedisURL                      string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix                string `mapstructure:"REDIS_KEY_PREFIX"`
	CreateOrderRateLimitPerMinute int    `mapstructure:"CREATE_ORDER_RATE_LIMIT_PER_MINUTE"`
	OrderLockTTLSeconds           int    `mapstructure:"ORDER_LOCK_TTL_SECONDS"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
}

// ConfigError reports required settings that are missing or invalid. It is
// fatal: the service refuses to start rather than failing per request.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

var requiredKeys = []string{
	"DATABASE_URL",
	"CLERK_JWKS_URL",
	"PAYTM_MERCHANT_ID",
	"PAYTM_MERCHANT_KEY",
	"PAYTM_WEBSITE",
	"PAYTM_CALLBACK_URL",
	"PAYTM_CHANNEL_ID",
	"PAYTM_INDUSTRY_TYPE",
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in the given path, then validates it.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("STORE_DRIVER", "postgres")
	viper.SetDefault("AUTO_MIGRATE", false)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("PAYTM_FALLBACK_WEBSITE", "DEFAULT")
	viper.SetDefault("PAYTM_CURRENCY", "INR")
	viper.SetDefault("PAYTM_TIMEOUT_SECONDS", 10)
	viper.SetDefault("SUBSCRIPTION_PERIOD_DAYS", 30)
	viper.SetDefault("SUBSCRIPTION_LAPSE_SCHEDULE", "@every 15m")
	viper.SetDefault("REDIS_KEY_PREFIX", "transfa:payments")
	viper.SetDefault("CREATE_ORDER_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("ORDER_LOCK_TTL_SECONDS", 30)
	viper.SetDefault("EVENTS_EXCHANGE", "transfa.events")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT", "STORE_DRIVER", "DATABASE_URL", "AUTO_MIGRATE",
		"CLERK_JWKS_URL", "CORS_ALLOWED_ORIGINS",
		"PAYTM_MERCHANT_ID", "PAYTM_MERCHANT_KEY", "PAYTM_WEBSITE", "PAYTM_FALLBACK_WEBSITE",
		"PAYTM_CALLBACK_URL", "PAYTM_CHANNEL_ID", "PAYTM_INDUSTRY_TYPE", "PAYTM_GATEWAY_BASE_URL",
		"PAYTM_CURRENCY", "PAYTM_TIMEOUT_SECONDS",
		"SUBSCRIPTION_PERIOD_DAYS", "SUBSCRIPTION_LAPSE_SCHEDULE",
		"REDIS_URL", "REDIS_KEY_PREFIX", "CREATE_ORDER_RATE_LIMIT_PER_MINUTE", "ORDER_LOCK_TTL_SECONDS",
		"RABBITMQ_URL", "EVENTS_EXCHANGE",
	} {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("PAYTM_INDUSTRY_TYPE", "PAYTM_INDUSTRY_TYPE", "PAYTM_INDUSTRY_TYPE_ID")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.normalize()

	if validationErr := config.Validate(); validationErr != nil {
		return config, validationErr
	}
	return config, nil
}

func (c *Config) normalize() {
	for _, field := range []*string{
		&c.DatabaseURL, &c.ClerkJWKSURL, &c.PaytmMerchantID, &c.PaytmMerchantKey,
		&c.PaytmWebsite, &c.PaytmFallbackWebsite, &c.PaytmCallbackURL, &c.PaytmChannelID,
		&c.PaytmIndustryType, &c.PaytmGatewayBaseURL, &c.PaytmCurrency, &c.RedisURL,
		&c.RedisKeyPrefix, &c.RabbitMQURL, &c.EventsExchange,
	} {
		*field = strings.TrimSpace(*field)
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.RedisKeyPrefix = strings.TrimSuffix(c.RedisKeyPrefix, ":")

	if c.PaytmTimeoutSeconds <= 0 {
		c.PaytmTimeoutSeconds = 10
	}
	if c.SubscriptionPeriodDays <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive subscription period; using 30 days\" value=%d", c.SubscriptionPeriodDays)
		c.SubscriptionPeriodDays = 30
	}
	if c.OrderLockTTLSeconds <= 0 {
		c.OrderLockTTLSeconds = 30
	}
	if c.CreateOrderRateLimitPerMinute < 0 {
		c.CreateOrderRateLimitPerMinute = 0
	}
}

// Validate checks that all required settings are present. It never includes
// secret values in the returned error.
func (c Config) Validate() error {
	values := map[string]string{
		"DATABASE_URL":        c.DatabaseURL,
		"CLERK_JWKS_URL":      c.ClerkJWKSURL,
		"PAYTM_MERCHANT_ID":   c.PaytmMerchantID,
		"PAYTM_MERCHANT_KEY":  c.PaytmMerchantKey,
		"PAYTM_WEBSITE":       c.PaytmWebsite,
		"PAYTM_CALLBACK_URL":  c.PaytmCallbackURL,
		"PAYTM_CHANNEL_ID":    c.PaytmChannelID,
		"PAYTM_INDUSTRY_TYPE": c.PaytmIndustryType,
	}

	cfgErr := &ConfigError{}
	for _, key := range requiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			cfgErr.Missing = append(cfgErr.Missing, key)
		}
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "sqlite" {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("STORE_DRIVER=%q", c.StoreDriver))
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// PaytmTimeout returns the per-attempt gateway timeout.
func (c Config) PaytmTimeout() time.Duration {
	return time.Duration(c.PaytmTimeoutSeconds) * time.Second
}

// SubscriptionPeriod returns the length of a paid activation.
func (c Config) SubscriptionPeriod() time.Duration {
	return time.Duration(c.SubscriptionPeriodDays) * 24 * time.Hour
}

// OrderLockTTL returns how long a per-user create-order lock may be held.
func (c Config) OrderLockTTL() time.Duration {
	return time.Duration(c.OrderLockTTLSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
