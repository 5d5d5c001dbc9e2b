package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// FreezeWindow — минимальный интервал до начала занятия для записи и отмены.
// Фиксированные 2 часа, через окружение не меняется.
const FreezeWindow = 2 * time.Hour

type Config struct {
	DBDSN          string
	RedisAddr      string
	RedisPassword  string
	TelegramToken  string
	AdminChatID    int64
	Environment    string
	MigrationsPath string

	// Доменные константы
	BookingFreezeWindow        time.Duration
	MinHoursForExam            float64
	MinRatingForExam           float64
	AbsenceEscalationThreshold int
	AttendanceLookbackDays     int
	DefaultCapacityTheory      int
	DefaultCapacityExamPrep    int
	DispatchInterval           time.Duration

	// AdminOverridesFreeze разрешает администратору отменять записи
	// внутри 2-часового окна. По умолчанию выключено.
	AdminOverridesFreeze bool
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:          os.Getenv("DB_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		AdminChatID:    getEnvInt64("ADMIN_CHAT_ID", 0),
		Environment:    os.Getenv("ENV"),
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),

		BookingFreezeWindow:        FreezeWindow,
		MinHoursForExam:            getEnvFloat("MIN_HOURS_FOR_EXAM", 20),
		MinRatingForExam:           getEnvFloat("MIN_RATING_FOR_EXAM", 3.5),
		AbsenceEscalationThreshold: getEnvInt("ABSENCE_ESCALATION_THRESHOLD", 3),
		AttendanceLookbackDays:     getEnvInt("ATTENDANCE_LOOKBACK_DAYS", 60),
		DefaultCapacityTheory:      getEnvInt("DEFAULT_CAPACITY_THEORY", 20),
		DefaultCapacityExamPrep:    getEnvInt("DEFAULT_CAPACITY_EXAM_PREP", 5),
		DispatchInterval:           getEnvDuration("DISPATCH_INTERVAL", 15*time.Second),

		AdminOverridesFreeze: os.Getenv("ADMIN_OVERRIDES_FREEZE") == "true",
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

// DefaultCapacity дефолтная вместимость для типа занятия.
// Практика всегда индивидуальная, вместимость жёстко 1.
func (c *Config) DefaultCapacity(lessonType string) int {
	switch lessonType {
	case "practical":
		return 1
	case "exam_prep":
		return c.DefaultCapacityExamPrep
	default:
		return c.DefaultCapacityTheory
	}
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}
