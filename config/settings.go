package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type DatabaseSettings struct {
	Driver          string
	User            string
	Password        string
	Host            string
	Port            string
	Name            string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	TxTimeout       time.Duration
	SkipMigrations  bool
}

type NewsSettings struct {
	APIURL          string
	APIKey          string
	Query           string
	Country         string
	Language        string
	DecisionLimit   int
	ProcessInterval time.Duration
}

type Settings struct {
	Port               string
	GoEnv              string
	LogLevel           string
	CorsAllowedOrigins []string

	DB DatabaseSettings

	RedisAddress        string
	RateLimitEnabled    bool
	RateLimitMaxRequest int64
	RateLimitWindow     time.Duration

	APISecret         string
	TokenHourLifespan int

	ChatbotAPIURL  string
	DecisionAPIURL string
	News           NewsSettings

	PubSubTopic           string
	PubSubProjectID       string
	PubSubCredentialsJSON string
	GCSBucket             string
	GCSCredentialsJSON    string
}

var (
	settings   *Settings
	settingsMu sync.Mutex
)

// GetSettings returns the process settings, loading them on first use.
func GetSettings() *Settings {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	if settings == nil {
		s, err := LoadSettings()
		if err != nil {
			GetLogger().WithField("field", "settings").Warn("using defaults: " + err.Error())
		}
		settings = s
	}
	return settings
}

// ReloadSettings drops the cached settings so the next GetSettings re-reads the environment.
func ReloadSettings() {
	settingsMu.Lock()
	settings = nil
	settingsMu.Unlock()
}

// LoadSettings reads config.yaml (optional) and the environment.
// Environment variables win over file values.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	var readErr error
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			readErr = err
		}
	}

	s := &Settings{
		Port:               v.GetString("port"),
		GoEnv:              v.GetString("go_env"),
		LogLevel:           v.GetString("log_level"),
		CorsAllowedOrigins: splitAndTrim(v.GetString("cors_allowed_origins")),
		DB: DatabaseSettings{
			Driver:          strings.ToLower(v.GetString("db_driver")),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			Host:            v.GetString("db_host"),
			Port:            v.GetString("db_port"),
			Name:            v.GetString("db_name"),
			SQLitePath:      v.GetString("sqlite_path"),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: time.Duration(v.GetInt("db_conn_max_lifetime_seconds")) * time.Second,
			ConnMaxIdleTime: time.Duration(v.GetInt("db_conn_max_idle_time_seconds")) * time.Second,
			TxTimeout:       time.Duration(v.GetInt("db_tx_timeout_seconds")) * time.Second,
			SkipMigrations:  v.GetBool("skip_migrations"),
		},
		RedisAddress:        v.GetString("redis_address"),
		RateLimitEnabled:    v.GetBool("rate_limit_enabled"),
		RateLimitMaxRequest: v.GetInt64("rate_limit_max_requests"),
		RateLimitWindow:     time.Duration(v.GetInt("rate_limit_window_seconds")) * time.Second,
		APISecret:           v.GetString("api_secret"),
		TokenHourLifespan:   v.GetInt("token_hour_lifespan"),
		ChatbotAPIURL:       v.GetString("chatbot_api_url"),
		DecisionAPIURL:      v.GetString("decision_api_url"),
		News: NewsSettings{
			APIURL:          v.GetString("news_api_url"),
			APIKey:          v.GetString("news_api_key"),
			Query:           v.GetString("news_query"),
			Country:         v.GetString("news_country"),
			Language:        v.GetString("news_language"),
			DecisionLimit:   v.GetInt("news_decision_limit"),
			ProcessInterval: time.Duration(v.GetInt("news_processor_interval_minutes")) * time.Minute,
		},
		PubSubTopic:           v.GetString("pubsub_topic"),
		PubSubProjectID:       v.GetString("pubsub_project_id"),
		PubSubCredentialsJSON: v.GetString("pubsub_credentials_json"),
		GCSBucket:             v.GetString("gcs_bucket"),
		GCSCredentialsJSON:    v.GetString("gcs_credentials_json"),
	}
	return s, readErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("go_env", "development")
	v.SetDefault("log_level", "error")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_port", "3306")
	v.SetDefault("sqlite_path", "budget.db")
	v.SetDefault("db_max_open_conns", 50)
	v.SetDefault("db_max_idle_conns", 25)
	v.SetDefault("db_conn_max_lifetime_seconds", 300)
	v.SetDefault("db_conn_max_idle_time_seconds", 60)
	v.SetDefault("db_tx_timeout_seconds", 30)
	v.SetDefault("redis_address", "localhost:6379")
	v.SetDefault("rate_limit_max_requests", 600)
	v.SetDefault("rate_limit_window_seconds", 60)
	v.SetDefault("token_hour_lifespan", 24)
	v.SetDefault("chatbot_api_url", "http://0.0.0.0:8000/api/chatbot")
	v.SetDefault("decision_api_url", "http://0.0.0.0:8000/api/news_decision")
	v.SetDefault("news_api_url", "https://newsdata.io/api/1/latest")
	v.SetDefault("news_query", "realestate or finance AND economy")
	v.SetDefault("news_country", "in")
	v.SetDefault("news_language", "en")
	v.SetDefault("news_decision_limit", 20)
	v.SetDefault("news_processor_interval_minutes", 0)
}

func (s *Settings) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.GoEnv), "production")
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
