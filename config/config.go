package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret string

	// AWS S3
	AWSRegion            string
	S3BucketName         string
	ReportArchiveEnabled bool

	// Server
	Port   string
	AppEnv string

	// Logging
	LogLevel string
	LogFile  string

	// Studio policy
	StudioTimezone   string
	AutoConfirmAfter time.Duration
	BatchSize        int
	AuditBaseHour    int

	// Scheduler cadences (cron specs, evaluated in the studio timezone)
	AutoConfirmSchedule   string
	AutoCompleteSchedule  string
	MonthlyReportSchedule string
	ReportArchiveSchedule string
	DispatchSchedule      string
	LedgerCheckSchedule   string
	SchedulerEnabled      bool

	// Notification sinks
	LineChannelSecret string
	LineChannelToken  string
	LineOpsGroupID    string
	AMQPURL           string
	AMQPExchange      string

	// Feature Toggles
	UseRedisNotifications bool
	MetricsEnabled        bool
	SkipMigrate           bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=UTC"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/studio-engine")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	cfg, err := build(getVal)
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg

	validateConfig(AppConfig, useSSM)
}

// build assembles a Config from a key lookup. Split out of LoadConfig so it can be tested
// without touching the process environment or SSM.
func build(getVal func(key, def string) string) (*Config, error) {
	autoConfirmAfter, err := ParseDuration(getVal("AUTO_CONFIRM_AFTER", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTO_CONFIRM_AFTER: %w", err)
	}
	batchSize, err := strconv.Atoi(getVal("SCHEDULER_BATCH_SIZE", "500"))
	if err != nil || batchSize <= 0 {
		return nil, fmt.Errorf("invalid SCHEDULER_BATCH_SIZE %q", getVal("SCHEDULER_BATCH_SIZE", ""))
	}
	auditBaseHour, err := strconv.Atoi(getVal("AUDIT_BASE_HOUR", "0"))
	if err != nil || auditBaseHour < 0 || auditBaseHour > 23 {
		return nil, fmt.Errorf("invalid AUDIT_BASE_HOUR %q", getVal("AUDIT_BASE_HOUR", ""))
	}

	return &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "studio_engine"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret: getVal("JWT_SECRET", "your_super_secret_jwt_key"),

		AWSRegion:            getVal("AWS_REGION", "ap-southeast-1"),
		S3BucketName:         getVal("S3_BUCKET_NAME", "studio-engine-reports"),
		ReportArchiveEnabled: isTrue(getVal("REPORT_ARCHIVE_ENABLED", "false")),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		StudioTimezone:   getVal("STUDIO_TIMEZONE", "Asia/Bangkok"),
		AutoConfirmAfter: autoConfirmAfter,
		BatchSize:        batchSize,
		AuditBaseHour:    auditBaseHour,

		AutoConfirmSchedule:   getVal("AUTO_CONFIRM_SCHEDULE", "@every 5m"),
		AutoCompleteSchedule:  getVal("AUTO_COMPLETE_SCHEDULE", "0 * * * *"),
		MonthlyReportSchedule: getVal("MONTHLY_REPORT_SCHEDULE", "0 1 1 * *"),
		ReportArchiveSchedule: getVal("REPORT_ARCHIVE_SCHEDULE", "0 2 1 * *"),
		DispatchSchedule:      getVal("NOTIFICATION_DISPATCH_SCHEDULE", "@every 1m"),
		LedgerCheckSchedule:   getVal("LEDGER_CHECK_SCHEDULE", "30 3 * * *"),
		SchedulerEnabled:      isTrue(getVal("SCHEDULER_ENABLED", "true")),

		LineChannelSecret: getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getVal("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineOpsGroupID:    getVal("LINE_OPS_GROUP_ID", ""),
		AMQPURL:           getVal("AMQP_URL", ""),
		AMQPExchange:      getVal("AMQP_EXCHANGE", "studio.events"),

		UseRedisNotifications: isTrue(getVal("USE_REDIS_NOTIFICATIONS", "false")),
		MetricsEnabled:        isTrue(getVal("METRICS_ENABLED", "true")),
		SkipMigrate:           isTrue(getVal("SKIP_MIGRATE", "false")),
	}, nil
}

// ParseDuration accepts Go durations plus the d (days) and w (weeks) shorthand.
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		unit := s[len(s)-1]
		if n, err2 := strconv.Atoi(s[:len(s)-1]); err2 == nil {
			switch unit {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func isTrue(v string) bool {
	return strings.ToLower(strings.TrimSpace(v)) == "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			key := name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				key = name[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
