package config

import (
	"encoding/json"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Credentials should never have defaults inside code and must be provided via config.json or the environment.
type AppConfig struct {
	AppPort            string
	RateLimitPerMinute int
	AllowedOrigins     []string
	StaticDir          string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Local database (sqlite, mysql or postgresql)
	DBType      string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPath      string
	// Remote PostgreSQL the attachment metadata is synced from
	RemoteDBHost     string
	RemoteDBPort     int
	RemoteDBName     string
	RemoteDBUser     string
	RemoteDBPassword string
	// Redis for pending jobs and caching
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Attachment cache
	CacheDir           string
	DownloadTimeoutSec int
	DefaultBaseURL     string
	// OCR
	OCREngine     string
	PaddleOCRURL  string
	TesseractPath string
	TesseractLang string
	// OpenAI compatible classifier
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	Prompt        string
	AITimeoutSec  int
	// Progress fan-out
	NATSURL           string
	NATSSubjectPrefix string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// AIEnabled reports whether the AI detection mode can be used.
func (c AppConfig) AIEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// RemoteDSN builds the upstream PostgreSQL connection string. Empty when no remote host is configured.
func (c AppConfig) RemoteDSN() string {
	if c.RemoteDBHost == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.RemoteDBHost, strconv.Itoa(c.RemoteDBPort)),
		Path:   "/" + c.RemoteDBName,
	}
	if c.RemoteDBUser != "" {
		if c.RemoteDBPassword != "" {
			u.User = url.UserPassword(c.RemoteDBUser, c.RemoteDBPassword)
		} else {
			u.User = url.User(c.RemoteDBUser)
		}
	}
	return u.String()
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	cfg = loadFrom(filepath.Join("config", "config.json"))
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Precedence: config.json -> defaults -> environment variable overrides
func loadFrom(path string) AppConfig {
	var c AppConfig
	_ = loadJSONConfig(path, &c)
	applyDefaults(&c)
	applyEnvOverrides(&c)
	return c
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case string:
				i, _ := strconv.Atoi(t)
				return i
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.StaticDir = getString(app, "StaticDir")
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBType = getString(dbs, "Type")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.DBPath = getString(dbs, "DBPath")
	}

	if rm, ok := raw["remote"].(map[string]any); ok {
		out.RemoteDBHost = getString(rm, "Host")
		out.RemoteDBPort = getInt(rm, "Port")
		out.RemoteDBName = getString(rm, "Name")
		out.RemoteDBUser = getString(rm, "User")
		out.RemoteDBPassword = getString(rm, "Password")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if cc, ok := raw["cache"].(map[string]any); ok {
		out.CacheDir = getString(cc, "Dir")
		out.DownloadTimeoutSec = getInt(cc, "DownloadTimeoutSec")
		out.DefaultBaseURL = getString(cc, "DefaultBaseURL")
	}

	if oc, ok := raw["ocr"].(map[string]any); ok {
		out.OCREngine = getString(oc, "Engine")
		out.PaddleOCRURL = getString(oc, "PaddleURL")
		out.TesseractPath = getString(oc, "TesseractPath")
		out.TesseractLang = getString(oc, "TesseractLang")
	}

	if ai, ok := raw["ai"].(map[string]any); ok {
		out.OpenAIAPIKey = getString(ai, "APIKey")
		out.OpenAIBaseURL = getString(ai, "BaseURL")
		out.Model = getString(ai, "Model")
		out.Prompt = getString(ai, "Prompt")
		out.AITimeoutSec = getInt(ai, "TimeoutSec")
	}

	if nt, ok := raw["nats"].(map[string]any); ok {
		out.NATSURL = getString(nt, "URL")
		out.NATSSubjectPrefix = getString(nt, "SubjectPrefix")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8000"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.DBType == "" {
		c.DBType = "sqlite"
	}
	if c.DBPath == "" {
		c.DBPath = "./local_attachments.db"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBName == "" {
		c.DBName = "attachments"
	}
	if c.RemoteDBPort == 0 {
		c.RemoteDBPort = 5432
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.CacheDir == "" {
		c.CacheDir = "./attachments_cache"
	}
	if c.DownloadTimeoutSec == 0 {
		c.DownloadTimeoutSec = 30
	}
	if c.DefaultBaseURL == "" {
		c.DefaultBaseURL = "http://www.ynu.edu.cn"
	}
	if c.OCREngine == "" {
		c.OCREngine = "paddle"
	}
	if c.TesseractPath == "" {
		c.TesseractPath = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "chi_sim+eng"
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.Prompt == "" {
		c.Prompt = "Please analyze this content and identify any sensitive information like ID card numbers or phone numbers."
	}
	if c.AITimeoutSec == 0 {
		c.AITimeoutSec = 120
	}
	if c.NATSSubjectPrefix == "" {
		c.NATSSubjectPrefix = "attachguard.progress"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	setString := func(key string, dst *string) {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("APP_PORT", &c.AppPort)
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}
	setString("STATIC_DIR", &c.StaticDir)
	setString("GIN_MODE", &c.GinMode)
	setString("GIN_PATH", &c.GinPath)

	setString("LOCAL_DB_TYPE", &c.DBType)
	setString("DATABASE_URI", &c.DatabaseURI)
	setString("LOCAL_DB_HOST", &c.DBHost)
	setString("LOCAL_DB_PORT", &c.DBPort)
	setString("LOCAL_DB_USER", &c.DBUser)
	setString("LOCAL_DB_PASSWORD", &c.DBPassword)
	setString("LOCAL_DB_NAME", &c.DBName)
	setString("LOCAL_DB_PATH", &c.DBPath)

	setString("REMOTE_DB_HOST", &c.RemoteDBHost)
	setInt("REMOTE_DB_PORT", &c.RemoteDBPort)
	setString("REMOTE_DB_NAME", &c.RemoteDBName)
	setString("REMOTE_DB_USER", &c.RemoteDBUser)
	setString("REMOTE_DB_PASSWORD", &c.RemoteDBPassword)

	setString("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setString("REDIS_PASSWORD", &c.RedisPassword)

	setString("ATTACHMENT_CACHE_DIR", &c.CacheDir)
	setInt("DOWNLOAD_TIMEOUT_SEC", &c.DownloadTimeoutSec)
	setString("ATTACHMENT_DEFAULT_BASE_URL", &c.DefaultBaseURL)

	setString("OCR_ENGINE", &c.OCREngine)
	setString("PADDLE_OCR_URL", &c.PaddleOCRURL)
	setString("TESSERACT_PATH", &c.TesseractPath)
	setString("TESSERACT_LANG", &c.TesseractLang)

	setString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	setString("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	setString("MODEL", &c.Model)
	setString("PROMPTS", &c.Prompt)
	setInt("AI_TIMEOUT_SEC", &c.AITimeoutSec)

	setString("NATS_URL", &c.NATSURL)
	setString("NATS_SUBJECT_PREFIX", &c.NATSSubjectPrefix)

	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = strings.EqualFold(v, "true") || v == "1"
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
