package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"buildsmart/backend/internal/domain"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportTTLSeconds      int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	InvoiceDir            string
	LicensePath           string
	LicenseSecret         string
	TrialDays             int
	WhatsAppGatewayURL    string
	BusinessName          string
	Currency              string
	LoyaltyPointsPer100   int64
	RewardThreshold       int64
	RewardValue           decimal.Decimal
	DispatchIntervalSecs  int
	DispatchMaxAttempts   int
}

func Load() Config {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reportTTL, err := strconv.Atoi(getEnv("REPORT_TTL_SECONDS", "30"))
	if err != nil || reportTTL < 1 {
		reportTTL = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	trialDays, err := strconv.Atoi(getEnv("TRIAL_DAYS", "30"))
	if err != nil || trialDays < 1 {
		trialDays = 30
	}
	dispatchInterval, err := strconv.Atoi(getEnv("DISPATCH_INTERVAL_SECONDS", "5"))
	if err != nil || dispatchInterval < 1 {
		dispatchInterval = 5
	}
	dispatchAttempts, err := strconv.Atoi(getEnv("DISPATCH_MAX_ATTEMPTS", "5"))
	if err != nil || dispatchAttempts < 1 {
		dispatchAttempts = 5
	}

	pointsPer100, err := strconv.ParseInt(getEnv("LOYALTY_POINTS_PER_100", "1"), 10, 64)
	if err != nil || pointsPer100 < 0 {
		pointsPer100 = 1
	}
	rewardThreshold, err := strconv.ParseInt(getEnv("LOYALTY_REWARD_THRESHOLD", "500"), 10, 64)
	if err != nil || rewardThreshold < 1 {
		rewardThreshold = 500
	}
	rewardValue, err := decimal.NewFromString(getEnv("LOYALTY_REWARD_VALUE", "100"))
	if err != nil || !rewardValue.IsPositive() {
		rewardValue = decimal.NewFromInt(100)
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportTTLSeconds:      reportTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		InvoiceDir:            getEnv("INVOICE_DIR", "invoices"),
		LicensePath:           getEnv("LICENSE_PATH", "license.db"),
		LicenseSecret:         strings.TrimSpace(getEnv("LICENSE_SECRET", "")),
		TrialDays:             trialDays,
		WhatsAppGatewayURL:    strings.TrimRight(os.Getenv("WHATSAPP_GATEWAY_URL"), "/"),
		BusinessName:          getEnv("BUSINESS_NAME", "BuildSmart Hardware"),
		Currency:              getEnv("CURRENCY", "LKR"),
		LoyaltyPointsPer100:   pointsPer100,
		RewardThreshold:       rewardThreshold,
		RewardValue:           rewardValue,
		DispatchIntervalSecs:  dispatchInterval,
		DispatchMaxAttempts:   dispatchAttempts,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Settings builds the stores' default business settings from the environment.
// Rows in the settings store still override these at read time.
func (c Config) Settings() domain.Settings {
	return domain.Settings{
		BusinessName: c.BusinessName,
		Currency:     c.Currency,
		Loyalty: domain.LoyaltyConfig{
			PointsPer100:    c.LoyaltyPointsPer100,
			RewardThreshold: c.RewardThreshold,
			RewardValue:     c.RewardValue,
		},
	}
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
