package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/franchise-core/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"franchise_core"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type AggregationOptions struct {
	CacheTTL     time.Duration `env:"AGGREGATION_CACHE_TTL" envDefault:"15m"`
	CacheBackend string        `env:"AGGREGATION_CACHE_BACKEND" envDefault:"memory"` // memory or redis
	CachePrefix  string        `env:"AGGREGATION_CACHE_PREFIX" envDefault:"agg"`
	FetchTimeout time.Duration `env:"AGGREGATION_FETCH_TIMEOUT" envDefault:"30s"`
}

func (a *AggregationOptions) Validate() error {
	if a.CacheBackend != "memory" && a.CacheBackend != "redis" {
		return fmt.Errorf("aggregation CacheBackend must be 'memory' or 'redis', got '%s'", a.CacheBackend)
	}
	if a.CacheTTL <= 0 {
		return fmt.Errorf("aggregation CacheTTL must be positive, got %s", a.CacheTTL)
	}
	if a.FetchTimeout <= 0 {
		return fmt.Errorf("aggregation FetchTimeout must be positive, got %s", a.FetchTimeout)
	}
	return nil
}

type PartitionOptions struct {
	SweepEnabled  bool          `env:"PARTITION_SWEEP_ENABLED" envDefault:"true"`
	SweepInterval time.Duration `env:"PARTITION_SWEEP_INTERVAL" envDefault:"24h"`
}

type PermissionOptions struct {
	// Optional YAML file overriding the built-in ancestor level implication table.
	ImplicationTablePath string `env:"PERMISSION_IMPLICATION_TABLE" envDefault:""`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database    DatabaseOptions
	Aggregation AggregationOptions
	Partition   PartitionOptions
	Permission  PermissionOptions
	Prometheus  PrometheusOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`

	// Row-level-security enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Aggregation.Validate(); err != nil {
		return fmt.Errorf("aggregation configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) Unload() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}
