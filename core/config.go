package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string // empty disables distributed locks
		Password string
		DB       int
		LockTTL  time.Duration
	}

	CacheConfig struct {
		SessionTTL    time.Duration
		DepartmentTTL time.Duration
		MaxEntries    int
	}

	MailConfig struct {
		DefaultFrom     mail.Address
		RegistrarEmails []mail.Address
		SendgridApiKey  string
		FrontendBaseURL string
	}

	LoggingConfig struct {
		Level  string
		Format string // "console" | "json"
	}

	Config struct {
		Env      string
		Build    string
		AppName  string
		Debug    bool
		TestMode bool

		SecretKey          string
		JWTExpirationDelta time.Duration
		RollbarToken       string

		// PromotionBatchSize bounds the number of student ids updated by a single statement during session close.
		PromotionBatchSize int

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Cache    CacheConfig
		Mail     MailConfig
		Logging  LoggingConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the environment name, eg. `DEV_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("build", "develop")
	v.SetDefault("app_name", "Exam Office")
	v.SetDefault("secret_key", "k2!j9d$7f)e_p3x#wq8@zv1m^c0r6n5b")
	v.SetDefault("jwt_expiration_delta", 8*time.Hour)
	v.SetDefault("rollbar_token", "")
	v.SetDefault("promotion_batch_size", 500)

	v.SetDefault("server_host", ":8000")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_read_timeout", 5*time.Second)
	v.SetDefault("server_write_timeout", 30*time.Second)
	v.SetDefault("server_shutdown_timeout", 10*time.Second)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", 5432)
	v.SetDefault("database_user", "examoffice")
	v.SetDefault("database_password", "examoffice")
	v.SetDefault("database_admin_user", "")
	v.SetDefault("database_admin_password", "")
	v.SetDefault("database_name", "examoffice")
	v.SetDefault("database_disable_tls", env == "DEV" || env == "TEST")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_lock_ttl", 30*time.Second)

	v.SetDefault("cache_session_ttl", 5*time.Minute)
	v.SetDefault("cache_department_ttl", 30*time.Minute)
	v.SetDefault("cache_max_entries", 1024)

	v.SetDefault("mail_default_from", "Exam Office <noreply@localhost>")
	v.SetDefault("mail_registrar_emails", "")
	v.SetDefault("mail_sendgrid_api_key", "")
	v.SetDefault("mail_frontend_base_url", "http://localhost:8080")

	v.SetDefault("logging_level", "info")
	v.SetDefault("logging_format", "console")

	v.SetEnvPrefix(env)
	v.AutomaticEnv()

	conf := &Config{
		Env:                env,
		Build:              v.GetString("build"),
		AppName:            v.GetString("app_name"),
		Debug:              v.GetBool("debug"),
		TestMode:           env == "TEST",
		SecretKey:          v.GetString("secret_key"),
		JWTExpirationDelta: v.GetDuration("jwt_expiration_delta"),
		RollbarToken:       v.GetString("rollbar_token"),
		PromotionBatchSize: v.GetInt("promotion_batch_size"),
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			DebugHost:       v.GetString("server_debug_host"),
			ReadTimeout:     v.GetDuration("server_read_timeout"),
			WriteTimeout:    v.GetDuration("server_write_timeout"),
			ShutdownTimeout: v.GetDuration("server_shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetInt("database_port"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_admin_user"),
			AdminPassword: v.GetString("database_admin_password"),
			Name:          v.GetString("database_name"),
			DisableTLS:    v.GetBool("database_disable_tls"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			LockTTL:  v.GetDuration("redis_lock_ttl"),
		},
		Cache: CacheConfig{
			SessionTTL:    v.GetDuration("cache_session_ttl"),
			DepartmentTTL: v.GetDuration("cache_department_ttl"),
			MaxEntries:    v.GetInt("cache_max_entries"),
		},
		Mail: MailConfig{
			DefaultFrom:     parseAddress(v.GetString("mail_default_from")),
			RegistrarEmails: parseAddressList(v.GetString("mail_registrar_emails")),
			SendgridApiKey:  v.GetString("mail_sendgrid_api_key"),
			FrontendBaseURL: v.GetString("mail_frontend_base_url"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging_level"),
			Format: v.GetString("logging_format"),
		},
	}
	if conf.PromotionBatchSize <= 0 {
		conf.PromotionBatchSize = 500
	}
	return conf
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return mail.Address{Address: CleanString(s)}
	}
	return *addr
}

func parseAddressList(s string) []mail.Address {
	if CleanString(s) == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(s)
	if err != nil {
		log.Printf("config: invalid address list %q: %v", s, err)
		return nil
	}
	list := make([]mail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, *a)
	}
	return list
}
