package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	ListenAddr     string
	MySQLDSN       string
	RequestTimeout time.Duration

	AdminUsername string
	AdminPassword string

	FALAPIKey    string
	FALBaseURL   string
	FALModelPath string

	CreditRatePerMegapixel int
	StartingCredits        int
	MaxImageDimension      int

	MembershipAPIURL     string
	MembershipCacheTTL   time.Duration
	ActiveMemberCredits  int
	FormerMemberCredits  int

	PricingTiersSpec     string
	PricingOnNoMatch     string
	PricingFallbackCents int
	PaymentCurrency      string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		RequestTimeout:         time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		AdminUsername:          getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:          getEnv("ADMIN_PASSWORD", "change-me"),
		FALBaseURL:             strings.TrimRight(getEnv("FAL_BASE_URL", "https://fal.run"), "/"),
		FALModelPath:           getEnv("FAL_MODEL_PATH", "/fal-ai/flux-pro/v1.1"),
		CreditRatePerMegapixel: getInt("CREDIT_RATE_PER_MEGAPIXEL", 10),
		StartingCredits:        getInt("STARTING_CREDITS", 0),
		MaxImageDimension:      getInt("MAX_IMAGE_DIMENSION", 4096),
		MembershipAPIURL:       getEnv("MEMBERSHIP_API_URL", ""),
		MembershipCacheTTL:     time.Hour * time.Duration(getInt("MEMBERSHIP_CACHE_TTL_HOURS", 24)),
		ActiveMemberCredits:    getInt("ACTIVE_MEMBER_CREDITS", 1000),
		FormerMemberCredits:    getInt("FORMER_MEMBER_CREDITS", 50),
		PricingTiersSpec:       getEnv("PRICING_TIERS", ""),
		PricingOnNoMatch:       strings.ToLower(getEnv("PRICING_ON_NO_MATCH", "reject")),
		PricingFallbackCents:   getInt("PRICING_FALLBACK_CENTS", 0),
		PaymentCurrency:        strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		CheckoutSuccessURL:     getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:      getEnv("CHECKOUT_CANCEL_URL", ""),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3Region:               os.Getenv("S3_REGION"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:        os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:         getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:               getEnv("S3_PREFIX", "generations"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.FALAPIKey = os.Getenv("FAL_API_KEY")
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.FALAPIKey == "" {
		missing = append(missing, "FAL_API_KEY")
	}
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if cfg.CheckoutSuccessURL == "" {
		missing = append(missing, "CHECKOUT_SUCCESS_URL")
	}
	if cfg.CheckoutCancelURL == "" {
		missing = append(missing, "CHECKOUT_CANCEL_URL")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.PricingOnNoMatch != "reject" && cfg.PricingOnNoMatch != "fallback" {
		return Config{}, fmt.Errorf("PRICING_ON_NO_MATCH must be \"reject\" or \"fallback\", got %q", cfg.PricingOnNoMatch)
	}
	if cfg.PricingOnNoMatch == "fallback" && cfg.PricingFallbackCents <= 0 {
		return Config{}, errors.New("PRICING_FALLBACK_CENTS must be positive when PRICING_ON_NO_MATCH=fallback")
	}
	if cfg.CreditRatePerMegapixel < 0 {
		return Config{}, errors.New("CREDIT_RATE_PER_MEGAPIXEL must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off process environment is fine.
	return nil
}
