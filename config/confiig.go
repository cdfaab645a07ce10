package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailfinder/discovery"
	"mailfinder/models"
)

var (
	DB        *gorm.DB
	Redis     *redis.Client
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// FinderConfig holds the engine knobs. Durations are Go duration strings
// ("10s", "750ms") in the environment.
type FinderConfig struct {
	ProbeTimeout   time.Duration `json:"probe_timeout"`
	ProbeRetries   int           `json:"probe_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	HeloDomain     string        `json:"helo_domain"`
	MailFrom       string        `json:"mail_from"`
	DNSTimeout     time.Duration `json:"dns_timeout"`
	Workers        int           `json:"workers"`
	FlushEvery     int           `json:"flush_every"`
	PoliteMin      time.Duration `json:"polite_min"`
	PoliteMax      time.Duration `json:"polite_max"`
	CrawlEnabled   bool          `json:"crawl_enabled"`
	CrawlPageLimit int           `json:"crawl_page_limit"`
	CrawlTimeout   time.Duration `json:"crawl_timeout"`
	CrawlRPS       float64       `json:"crawl_rps"`
	CacheSize      int           `json:"cache_size"`
	StateTTL       time.Duration `json:"state_ttl"`
	BatchSize      int           `json:"batch_size"`
	PollInterval   time.Duration `json:"poll_interval"`
	RulesFile      string        `json:"rules_file"`
}

type Config struct {
	Environment        string       `json:"environment"`
	JWTSecret          string       `json:"-"`
	ServerPort         string       `json:"server_port"`
	SentryDSN          string       `json:"-"`
	DBHost             string       `json:"db_host"`
	DBPort             string       `json:"db_port"`
	DBUser             string       `json:"db_user"`
	DBPassword         string       `json:"-"`
	DBName             string       `json:"db_name"`
	DBSSLMode          string       `json:"db_ssl_mode"`
	DBMaxIdleConns     int          `json:"db_max_idle_conns"`
	DBMaxOpenConns     int          `json:"db_max_open_conns"`
	RateLimitPerMinute int          `json:"rate_limit_per_minute"`
	MaxBatchContacts   int          `json:"max_batch_contacts"`
	CORSOrigins        []string     `json:"cors_origins"`
	Redis              RedisConfig  `json:"redis"`
	Finder             FinderConfig `json:"finder"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		ServerPort:         getEnv("SERVER_PORT", "5000"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "mailfinder"),
		DBSSLMode:          getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		MaxBatchContacts:   getEnvAsInt("MAX_BATCH_CONTACTS", 1000),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Finder: LoadFinderConfig(),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if err := AppConfig.Finder.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// LoadFinderConfig reads the FINDER_* variables over the engine defaults.
func LoadFinderConfig() FinderConfig {
	return FinderConfig{
		ProbeTimeout:   getEnvAsDuration("FINDER_PROBE_TIMEOUT", 10*time.Second),
		ProbeRetries:   getEnvAsInt("FINDER_PROBE_RETRIES", 1),
		RetryDelay:     getEnvAsDuration("FINDER_RETRY_DELAY", 3*time.Second),
		HeloDomain:     getEnv("FINDER_HELO_DOMAIN", "verify.mailfinder.local"),
		MailFrom:       getEnv("FINDER_MAIL_FROM", ""),
		DNSTimeout:     getEnvAsDuration("FINDER_DNS_TIMEOUT", 5*time.Second),
		Workers:        getEnvAsInt("FINDER_WORKERS", 3),
		FlushEvery:     getEnvAsInt("FINDER_FLUSH_EVERY", 10),
		PoliteMin:      getEnvAsDuration("FINDER_POLITE_MIN", 500*time.Millisecond),
		PoliteMax:      getEnvAsDuration("FINDER_POLITE_MAX", 1500*time.Millisecond),
		CrawlEnabled:   getEnvAsBool("FINDER_CRAWL_ENABLED", true),
		CrawlPageLimit: getEnvAsInt("FINDER_CRAWL_PAGE_LIMIT", 4),
		CrawlTimeout:   getEnvAsDuration("FINDER_CRAWL_TIMEOUT", 10*time.Second),
		CrawlRPS:       getEnvAsFloat("FINDER_CRAWL_RPS", 2),
		CacheSize:      getEnvAsInt("FINDER_CACHE_SIZE", 500),
		StateTTL:       getEnvAsDuration("FINDER_STATE_TTL", 7*24*time.Hour),
		BatchSize:      getEnvAsInt("FINDER_BATCH_SIZE", 200),
		PollInterval:   getEnvAsDuration("FINDER_POLL_INTERVAL", time.Minute),
		RulesFile:      getEnv("FINDER_RULES_FILE", ""),
	}
}

func (f FinderConfig) Validate() error {
	if f.Workers < 1 {
		return fmt.Errorf("FINDER_WORKERS must be at least 1")
	}
	if f.PoliteMax < f.PoliteMin {
		return fmt.Errorf("FINDER_POLITE_MAX must not be below FINDER_POLITE_MIN")
	}
	if f.BatchSize < 1 {
		return fmt.Errorf("FINDER_BATCH_SIZE must be at least 1")
	}
	if f.ProbeRetries < 0 || f.ProbeRetries > discovery.MaxProbeRetries {
		return fmt.Errorf("FINDER_PROBE_RETRIES must be between 0 and %d", discovery.MaxProbeRetries)
	}
	return nil
}

func (f FinderConfig) ProberConfig() discovery.ProberConfig {
	return discovery.ProberConfig{
		HeloDomain: f.HeloDomain,
		MailFrom:   f.MailFrom,
		Timeout:    f.ProbeTimeout,
		Retries:    f.ProbeRetries,
		RetryDelay: f.RetryDelay,
	}
}

func (f FinderConfig) CrawlerConfig() discovery.CrawlerConfig {
	return discovery.CrawlerConfig{
		PageLimit:      f.CrawlPageLimit,
		Timeout:        f.CrawlTimeout,
		PoliteDelayMin: f.PoliteMin,
		PoliteDelayMax: f.PoliteMax,
		RateLimitRPS:   f.CrawlRPS,
		CacheSize:      f.CacheSize,
	}
}

func (f FinderConfig) OrchestratorConfig() discovery.OrchestratorConfig {
	return discovery.OrchestratorConfig{
		Workers:    f.Workers,
		FlushEvery: f.FlushEvery,
	}
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// ConnectRedis opens the shared client when REDIS_ENABLED is set. It leaves
// Redis nil otherwise.
func ConnectRedis() error {
	if !AppConfig.Redis.Enabled {
		log.Println("Redis disabled, domain state stays in memory")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     AppConfig.Redis.Address,
		Password: AppConfig.Redis.Password,
		DB:       AppConfig.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}
	Redis = client
	log.Printf("✅ Connected to redis at %s", AppConfig.Redis.Address)
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("⚠️ Invalid duration %q for %s, using %s", valueStr, key, fallback)
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Redis: enabled=%t address=%s", AppConfig.Redis.Enabled, AppConfig.Redis.Address)
	f := AppConfig.Finder
	log.Printf("Finder: workers=%d probe_timeout=%s retries=%d crawl=%t pages=%d helo=%s",
		f.Workers, f.ProbeTimeout, f.ProbeRetries, f.CrawlEnabled, f.CrawlPageLimit, f.HeloDomain)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.FinderRun{},
		&models.Contact{},
		&models.DomainRecord{},
	)
}
