package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	Env         string
	LogLevel    string
	DatabaseDSN string
	DBDriver    string
	DataDir     string
	BotInstance string
	MetricsAddr string
	Postgres    PostgresConfig
	Storage     StorageConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Policy      PolicyConfig
	Notify      NotifyConfig
	Report      ReportConfig
	Schedule    ScheduleConfig

	ClientCallsPerMinute int
	FetchDuration        time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
	Prefix    string
}

func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

// QueueConfig selects the queue transport. An empty RedisURL keeps queues in memory.
type QueueConfig struct {
	RedisURL         string
	RedisTLSInsecure bool
	Prefix           string
}

func (q QueueConfig) UsesRedis() bool {
	return q.RedisURL != ""
}

// Name returns the list name used for one action type.
func (q QueueConfig) Name(actionType string) string {
	return q.Prefix + ":" + actionType
}

type WorkerConfig struct {
	DelayBase     time.Duration
	DelayOffset   time.Duration
	IdlePoll      time.Duration
	RetryAttempts int
	RetryInitial  time.Duration
}

// PolicyConfig holds the membership rules knobs.
type PolicyConfig struct {
	WaitingPeriod       time.Duration
	RewarnAfter         time.Duration
	JuniorThresholdAge  int
	AdultAge            int
	MaxAddAttempts      int
	SanityCheckPhone    string
	ProtectedPhones     []string
	ProtectedPhonesFile string
}

type NotifyConfig struct {
	WebhookURL        string
	WebhookToken      string
	WarningWebhookURL string
}

type ReportConfig struct {
	Dir          string
	XLSX         bool
	AuditLogPath string
}

type ScheduleConfig struct {
	ScanCron string
	AddCron  string
	Queue    string
}

func Load() *AppConfig {
	pg := PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", ""),
		Port:     getEnv("POSTGRES_PORT", ""),
		User:     getEnv("POSTGRES_USER", ""),
		Password: getEnv("POSTGRES_PASSWORD", ""),
		DBName:   getEnv("POSTGRES_DB", ""),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}

	storage := StorageConfig{
		Endpoint:  getEnv("STORAGE_ENDPOINT", getEnv("MINIO_ENDPOINT", "")),
		AccessKey: getEnv("STORAGE_ACCESS_KEY", getEnv("MINIO_ACCESS_KEY", "")),
		SecretKey: getEnv("STORAGE_SECRET_KEY", getEnv("MINIO_SECRET_KEY", "")),
		Bucket:    getEnv("STORAGE_BUCKET", getEnv("MINIO_BUCKET", "")),
		Region:    getEnv("STORAGE_REGION", getEnv("MINIO_REGION", "")),
		UseSSL:    getBool("STORAGE_USE_SSL", getBool("MINIO_USE_SSL", false)),
		PublicURL: getEnv("STORAGE_PUBLIC_URL", getEnv("MINIO_PUBLIC_URL", "")),
		Prefix:    getEnv("STORAGE_PREFIX", ""),
	}

	dsn := getEnv("DATABASE_DSN", "")
	driver := strings.ToLower(getEnv("DB_DRIVER", ""))
	if driver == "" {
		switch {
		case strings.HasPrefix(strings.ToLower(dsn), "postgres"):
			driver = "postgres"
		case pg.Host != "":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}
	if driver == "postgres" && dsn == "" {
		dsn = buildPostgresDSN(pg)
	}

	cfg := &AppConfig{
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		DatabaseDSN: dsn,
		DBDriver:    driver,
		DataDir:     getEnv("DATA_DIR", "data"),
		BotInstance: getEnv("BOT_INSTANCE", "groupkeeper"),
		MetricsAddr: strings.TrimSpace(getEnv("METRICS_ADDR", "")),
		Postgres:    pg,
		Storage:     storage,
		Queue: QueueConfig{
			RedisURL:         strings.TrimSpace(getEnv("REDIS_URL", "")),
			RedisTLSInsecure: getBool("REDIS_TLS_INSECURE", false),
			Prefix:           getEnv("QUEUE_PREFIX", "groupkeeper:actions"),
		},
		Worker: WorkerConfig{
			DelayBase:     getDuration("WORKER_DELAY_BASE", 90*time.Second),
			DelayOffset:   getDuration("WORKER_DELAY_OFFSET", 30*time.Second),
			IdlePoll:      getDuration("WORKER_IDLE_POLL", time.Minute),
			RetryAttempts: getInt("WORKER_RETRY_ATTEMPTS", 3),
			RetryInitial:  getDuration("WORKER_RETRY_INITIAL", 5*time.Second),
		},
		Policy: PolicyConfig{
			WaitingPeriod:       getDuration("WAITING_PERIOD", 72*time.Hour),
			RewarnAfter:         getDuration("REWARN_AFTER", 7*24*time.Hour),
			JuniorThresholdAge:  getInt("JUNIOR_THRESHOLD_AGE", 10),
			AdultAge:            getInt("ADULT_AGE", 18),
			MaxAddAttempts:      getInt("MAX_ADD_ATTEMPTS", 3),
			SanityCheckPhone:    strings.TrimSpace(getEnv("SANITY_CHECK_PHONE", "")),
			ProtectedPhones:     splitList(getEnv("PROTECTED_PHONES", "")),
			ProtectedPhonesFile: strings.TrimSpace(getEnv("PROTECTED_PHONES_FILE", "")),
		},
		Notify: NotifyConfig{
			WebhookURL:        strings.TrimSpace(getEnv("NOTIFY_WEBHOOK_URL", "")),
			WebhookToken:      strings.TrimSpace(getEnv("NOTIFY_WEBHOOK_TOKEN", "")),
			WarningWebhookURL: strings.TrimSpace(getEnv("WARNING_WEBHOOK_URL", "")),
		},
		Report: ReportConfig{
			Dir:          getEnv("REPORT_DIR", "reports"),
			XLSX:         getBool("REPORT_XLSX", false),
			AuditLogPath: getEnv("AUDIT_LOG_PATH", "logs/actions.csv"),
		},
		Schedule: ScheduleConfig{
			ScanCron: getEnv("SCHEDULE_SCAN_CRON", "0 6 * * *"),
			AddCron:  getEnv("SCHEDULE_ADD_CRON", "*/30 * * * *"),
			Queue:    getEnv("SCHEDULE_QUEUE", "groupkeeper"),
		},
		ClientCallsPerMinute: getInt("CLIENT_CALLS_PER_MINUTE", 20),
		FetchDuration:        getDuration("FETCH_DURATION", 2*time.Minute),
	}
	return cfg
}

// Validate reports configuration that would make the engine act on nonsense.
func (c *AppConfig) Validate() error {
	if c.DBDriver != "postgres" && c.DBDriver != "memory" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN required for postgres driver")
	}
	if c.Policy.WaitingPeriod <= 0 {
		return fmt.Errorf("WAITING_PERIOD must be positive")
	}
	if c.Policy.WaitingPeriod >= c.Policy.RewarnAfter {
		return fmt.Errorf("WAITING_PERIOD (%s) must be shorter than REWARN_AFTER (%s)", c.Policy.WaitingPeriod, c.Policy.RewarnAfter)
	}
	if c.Policy.JuniorThresholdAge <= 0 || c.Policy.AdultAge <= c.Policy.JuniorThresholdAge {
		return fmt.Errorf("ADULT_AGE must be greater than JUNIOR_THRESHOLD_AGE")
	}
	if c.Worker.DelayOffset > c.Worker.DelayBase {
		return fmt.Errorf("WORKER_DELAY_OFFSET must not exceed WORKER_DELAY_BASE")
	}
	return nil
}

type protectedFile struct {
	Phones []string `yaml:"phones"`
}

// ProtectedList merges PROTECTED_PHONES with the optional YAML file.
func (c *AppConfig) ProtectedList() ([]string, error) {
	out := append([]string(nil), c.Policy.ProtectedPhones...)
	path := c.Policy.ProtectedPhonesFile
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protected phones file: %w", err)
	}
	var doc protectedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse protected phones file: %w", err)
	}
	return append(out, doc.Phones...), nil
}

func buildPostgresDSN(pg PostgresConfig) string {
	host := pg.Host
	if host == "" {
		host = "localhost"
	}
	port := pg.Port
	if port == "" {
		port = "5432"
	}
	ssl := pg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}

	u := &url.URL{Scheme: "postgres", Host: fmt.Sprintf("%s:%s", host, port)}
	if pg.User != "" {
		if pg.Password != "" {
			u.User = url.UserPassword(pg.User, pg.Password)
		} else {
			u.User = url.User(pg.User)
		}
	}
	if pg.DBName != "" {
		u.Path = pg.DBName
	}
	q := u.Query()
	q.Set("sslmode", ssl)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: invalid integer for %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("warning: invalid duration for %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func MustLoad() *AppConfig {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	return cfg
}
