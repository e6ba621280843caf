package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"account-server/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config holds the application configuration.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	// LogOutputPath is a file path, stdout or stderr.
	LogOutputPath string `envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
	ServiceName   string `envconfig:"SERVICE_NAME" default:"account-server"`
	ServerPort    string `envconfig:"SERVER_PORT" default:"8000"`

	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_IDLE_TIMEOUT" default:"5m"`
	// Secret, read from db_password.
	DBPassword string `ignored:"true"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Optional secret, read from redis_password.
	RedisPassword string `ignored:"true"`

	// Secrets, read from jwt_access_secret and jwt_refresh_secret.
	AccessTokenSecret  string `ignored:"true"`
	RefreshTokenSecret string `ignored:"true"`

	TokenIssuer     string        `envconfig:"JWT_ISSUER" default:"account-server"`
	AccessTokenTTL  time.Duration `envconfig:"JWT_ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"JWT_REFRESH_TOKEN_TTL" default:"240h"`
	// SessionStore selects where refresh token digests live: postgres or redis.
	SessionStore        string        `envconfig:"SESSION_STORE" default:"postgres"`
	SessionStoreTimeout time.Duration `envconfig:"SESSION_STORE_TIMEOUT" default:"3s"`
	RevokeOnReuse       bool          `envconfig:"SESSION_REVOKE_ON_REUSE" default:"true"`

	PasswordPepper string `ignored:"true"`
	BcryptCost     int    `envconfig:"BCRYPT_COST" default:"10"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME" required:"true"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY" required:"true"`
	CloudinaryFolder    string `envconfig:"CLOUDINARY_FOLDER" default:"accounts"`
	// Secret, read from cloudinary_api_secret.
	CloudinaryAPISecret string `ignored:"true"`

	UploadTempDir  string `envconfig:"UPLOAD_TEMP_DIR" default:"./public/temp"`
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"5242880"`

	// Empty RabbitMQURL logs security events instead of publishing them.
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CookieSecure       bool   `envconfig:"COOKIE_SECURE" default:"true"`
	CookieDomain       string `envconfig:"COOKIE_DOMAIN"`

	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// GetAllowedOrigins splits the CORSAllowedOrigins string into a slice.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate rejects settings the session layer cannot run with.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStorePostgres, SessionStoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreRedis, c.SessionStore)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("JWT_REFRESH_TOKEN_TTL (%s) must be longer than JWT_ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if c.RateLimitEnabled && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit needs positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW")
	}
	return nil
}

// LoadConfig loads configuration from the environment, an optional .env file and secrets.
// Secrets come from Docker Secrets files and fall back to upper-cased env variables.
func LoadConfig(envFilePath string) (*Config, error) {
	if _, err := os.Stat(envFilePath); err == nil {
		if err := godotenv.Load(envFilePath); err != nil {
			log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
		} else {
			log.Printf("Loaded configuration from %s", envFilePath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	required := []struct {
		name string
		dst  *string
	}{
		{"db_password", &cfg.DBPassword},
		{"jwt_access_secret", &cfg.AccessTokenSecret},
		{"jwt_refresh_secret", &cfg.RefreshTokenSecret},
		{"password_pepper", &cfg.PasswordPepper},
		{"cloudinary_api_secret", &cfg.CloudinaryAPISecret},
	}
	for _, s := range required {
		v, err := utils.ReadSecretOrEnv(s.name, strings.ToUpper(s.name))
		if err != nil {
			return nil, err
		}
		*s.dst = v
	}

	if redisPass, err := utils.ReadSecretOrEnv("redis_password", "REDIS_PASSWORD"); err == nil {
		cfg.RedisPassword = redisPass
	} else {
		log.Printf("Optional secret 'redis_password' not found: %v. Assuming no password.", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Println("Configuration loaded successfully")
	return &cfg, nil
}
