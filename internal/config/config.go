package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string
	AuthKey     string
	Host        string

	// Connection pool sizing.
	DBMaxConns int
	DBMinConns int

	// Moderation: nicks allowed to kick/ban even without a persisted
	// admin flag.
	AdminNicks []string

	// Broadcast join/leave system notices to the room.
	JoinLeaveNotices bool

	// Retention window for persisted messages.
	RetentionDays int

	// Liveness probe interval. A peer that misses two consecutive
	// probes is evicted.
	ProbeInterval time.Duration

	// Media object store.
	MediaDir      string
	PublicBaseURL string

	// Web Push (VAPID).
	VapidPublicKey  string
	VapidPrivateKey string
	VapidSubject    string

	// Room summary mail.
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SummaryFrom string
	SummaryTo   string
}

func Load() *Config {
	log.Println("[CONFIG] Attempting to load .env file...")

	err := godotenv.Load()
	if err != nil {
		log.Println("[CONFIG] ℹ️ No .env file found, relying on system environment variables")
	} else {
		log.Println("[CONFIG] ✅ Successfully loaded .env file")
	}

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		AuthKey:          getEnv("AUTH_KEY", ""),
		Host:             getEnv("HOST", "localhost"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:       getEnvInt("DB_MIN_CONNS", 2),
		AdminNicks:       splitList(getEnv("ADMIN_NICKS", "")),
		JoinLeaveNotices: getEnvBool("JOIN_LEAVE_NOTICES", true),
		RetentionDays:    getEnvInt("RETENTION_DAYS", 15),
		ProbeInterval:    time.Duration(getEnvInt("PROBE_INTERVAL_SECONDS", 30)) * time.Second,
		MediaDir:         getEnv("MEDIA_DIR", "./media"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		VapidPublicKey:   getEnv("VAPID_PUBLIC_KEY", ""),
		VapidPrivateKey:  getEnv("VAPID_PRIVATE_KEY", ""),
		VapidSubject:     getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPass:         getEnv("SMTP_PASS", ""),
		SummaryFrom:      getEnv("SUMMARY_FROM", ""),
		SummaryTo:        getEnv("SUMMARY_TO", ""),
	}

	log.Printf("[CONFIG] Environment: %s", cfg.Env)
	log.Printf("[CONFIG] Target Port: %s", cfg.Port)

	if cfg.DatabaseURL == "" {
		log.Fatal("[CONFIG] ❌ CRITICAL: DATABASE_URL is missing. Server cannot start.")
	} else {
		maskedDB := maskDBSource(cfg.DatabaseURL)
		log.Printf("[CONFIG] Database URL detected: %s", maskedDB)
	}

	if cfg.AuthKey == "" {
		log.Fatal("[CONFIG] ❌ CRITICAL: AUTH_KEY (JWT Secret) is missing. Security cannot be initialized.")
	} else {
		log.Println("[CONFIG] ✅ AUTH_KEY loaded successfully")
	}

	if len(cfg.AdminNicks) > 0 {
		log.Printf("[CONFIG] Moderation allow-list: %d nick(s)", len(cfg.AdminNicks))
	}

	log.Println("[CONFIG] All configuration variables successfully initialized")
	return cfg
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		log.Printf("[CONFIG] ⚠️  Variable %s not found, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[CONFIG] ⚠️  Variable %s is not a number (%q), using default: %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[CONFIG] ⚠️  Variable %s is not a boolean (%q), using default: %v", key, raw, defaultValue)
		return defaultValue
	}
	return b
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[1]
}
