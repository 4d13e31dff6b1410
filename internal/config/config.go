// Package config assembles the server configuration from built-in defaults,
// an optional YAML file, a .env file and CHAT_* environment variables.
// Command-line flags are applied last by the caller.
package config

import (
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CHAT_"

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Config struct {
	Addr           string     `yaml:"addr"`
	DBDriver       string     `yaml:"db_driver"`
	DBDSN          string     `yaml:"db_dsn"`
	SessionSecret  string     `yaml:"session_secret"`
	SecureCookies  bool       `yaml:"secure_cookies"`
	Admin          string     `yaml:"admin"`
	AdminPassword  string     `yaml:"admin_password"`
	StaticDir      string     `yaml:"static_dir"`
	AllowedOrigins []string   `yaml:"allowed_origins"`
	MaxMessageSize SizeBytes  `yaml:"max_message_size"`
	RateLimit      float64    `yaml:"rate_limit"`
	RateBurst      int        `yaml:"rate_burst"`
	RingTimeout    Duration   `yaml:"ring_timeout"`
	TypingTimeout  Duration   `yaml:"typing_timeout"`
	SMTP           SMTPConfig `yaml:"smtp"`
	AdminEmail     string     `yaml:"admin_email"`
}

func Default() *Config {
	return &Config{
		Addr:           ":3000",
		DBDriver:       "sqlite3",
		DBDSN:          "chat.db",
		Admin:          "Admin01",
		StaticDir:      "public",
		MaxMessageSize: 64 * 1024,
		RateLimit:      20,
		RateBurst:      40,
		RingTimeout:    Duration(45 * time.Second),
		TypingTimeout:  Duration(5 * time.Second),
		SMTP:           SMTPConfig{Port: "587"},
	}
}

// Load returns the defaults overlaid with path (if it exists), .env and the
// environment. An unreadable or malformed file is an error; a missing one
// is not.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Printf("Config file %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		}
	}

	_ = godotenv.Load(".env")
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// applyEnv overlays CHAT_* variables. PORT and DATABASE_URL are honoured
// for hosting platforms that set them.
func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	if url := getenv("DATABASE_URL"); url != "" {
		c.DBDriver = "postgres"
		c.DBDSN = url
	}

	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("SESSION_SECRET", &c.SessionSecret)
	str("ADMIN", &c.Admin)
	str("ADMIN_PASSWORD", &c.AdminPassword)
	str("STATIC_DIR", &c.StaticDir)
	str("SMTP_HOST", &c.SMTP.Host)
	str("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	str("ADMIN_EMAIL", &c.AdminEmail)

	if v := getenv(envPrefix + "ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := getenv(envPrefix + "SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SecureCookies = b
		} else {
			log.Printf("Ignoring %sSECURE_COOKIES=%q: %v", envPrefix, v, err)
		}
	}
	if v := getenv(envPrefix + "MAX_MESSAGE_SIZE"); v != "" {
		if s, err := parseSize(v); err == nil {
			c.MaxMessageSize = s
		} else {
			log.Printf("Ignoring %sMAX_MESSAGE_SIZE: %v", envPrefix, err)
		}
	}
	if v := getenv(envPrefix + "RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit = f
		} else {
			log.Printf("Ignoring %sRATE_LIMIT=%q: %v", envPrefix, v, err)
		}
	}
	if v := getenv(envPrefix + "RATE_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.RateBurst = i
		} else {
			log.Printf("Ignoring %sRATE_BURST=%q: %v", envPrefix, v, err)
		}
	}
	for name, dst := range map[string]*Duration{"RING_TIMEOUT": &c.RingTimeout, "TYPING_TIMEOUT": &c.TypingTimeout} {
		if v := getenv(envPrefix + name); v != "" {
			if d, err := parseDuration(v); err == nil {
				*dst = d
			} else {
				log.Printf("Ignoring %s%s: %v", envPrefix, name, err)
			}
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Sanitize replaces invalid values with their defaults, logging each change.
func (c *Config) Sanitize() {
	def := Default()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		log.Printf("Unknown db_driver %q, using %s", c.DBDriver, def.DBDriver)
		c.DBDriver = def.DBDriver
	}
	if c.DBDSN == "" {
		c.DBDSN = def.DBDSN
	}
	if !models.ValidName(c.Admin) || models.Reserved(c.Admin) {
		if c.Admin != "" {
			log.Printf("Invalid admin username %q, using %s", c.Admin, def.Admin)
		}
		c.Admin = def.Admin
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit < 0 {
		log.Printf("Negative rate_limit %v, using %v", c.RateLimit, def.RateLimit)
		c.RateLimit = def.RateLimit
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		c.RateBurst = def.RateBurst
	}
	if c.RingTimeout < 0 {
		c.RingTimeout = def.RingTimeout
	}
	if c.TypingTimeout < 0 {
		c.TypingTimeout = def.TypingTimeout
	}
	if c.SMTP.Port == "" {
		c.SMTP.Port = def.SMTP.Port
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if len(c.SessionSecret) < 32 {
		if c.SessionSecret != "" {
			log.Printf("WARNING: session_secret is shorter than 32 bytes; generating a random one")
		} else {
			log.Printf("WARNING: no session_secret configured; sessions will not survive a restart")
		}
		c.SessionSecret = randomSecret()
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate session secret: %v", err)
	}
	return fmt.Sprintf("%x", b)
}
