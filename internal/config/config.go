package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Queue        QueueConfig
	CouchDB      CouchDBConfig
	Engine       EngineConfig
	Network      NetworkConfig
	Integrity    IntegrityConfig
	Collaborator CollaboratorConfig
	WebSocket    WebSocketConfig
	CORS         CORSConfig
	Auth         AuthConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// QueueConfig locates the durable operation queue.
type QueueConfig struct {
	Path string
}

// CouchDBConfig locates the remote note store. An empty Host selects the
// in-memory store, which is what tests and offline-only deployments use.
type CouchDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type EngineConfig struct {
	ProcessInterval         time.Duration
	StatsInterval           time.Duration
	CleanupInterval         time.Duration
	CleanupAge              time.Duration
	ConflictRetention       time.Duration
	BatchSize               int
	ChunkSize               int
	MaxRetries              int
	BackoffBase             time.Duration
	BackoffMax              time.Duration
	DependencyRetryDelay    time.Duration
	RetryScanAge            time.Duration
	RetryBatchSize          int
	DependencyFailurePolicy string
}

type NetworkConfig struct {
	ProbeHost     string
	ProbeURL      string
	PollInterval  time.Duration
	ProbeInterval time.Duration
}

type IntegrityConfig struct {
	MonitorInterval time.Duration
	AutoCorrect     bool
}

type CollaboratorConfig struct {
	BaseURL  string
	TokenTTL time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxObservers    int
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type AuthConfig struct {
	TokenSecret string
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Queue: QueueConfig{
			Path: getEnv("QUEUE_DB_PATH", "notesync.db"),
		},
		CouchDB: CouchDBConfig{
			Host:     getEnv("COUCHDB_HOST", ""),
			Port:     getEnv("COUCHDB_PORT", "5984"),
			User:     getEnv("COUCHDB_USER", "admin"),
			Password: getEnv("COUCHDB_PASSWORD", "password"),
			Name:     getEnv("COUCHDB_NAME", "notesync"),
		},
		Engine: EngineConfig{
			ProcessInterval:         getEnvAsDuration("ENGINE_PROCESS_INTERVAL", 5*time.Second),
			StatsInterval:           getEnvAsDuration("ENGINE_STATS_INTERVAL", 10*time.Second),
			CleanupInterval:         getEnvAsDuration("ENGINE_CLEANUP_INTERVAL", 24*time.Hour),
			CleanupAge:              getEnvAsDuration("ENGINE_CLEANUP_AGE", 7*24*time.Hour),
			ConflictRetention:       getEnvAsDuration("ENGINE_CONFLICT_RETENTION", 30*24*time.Hour),
			BatchSize:               getEnvAsInt("ENGINE_BATCH_SIZE", 10),
			ChunkSize:               getEnvAsInt("ENGINE_CHUNK_SIZE", 3),
			MaxRetries:              getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			BackoffBase:             getEnvAsDuration("ENGINE_BACKOFF_BASE", time.Second),
			BackoffMax:              getEnvAsDuration("ENGINE_BACKOFF_MAX", 5*time.Minute),
			DependencyRetryDelay:    getEnvAsDuration("ENGINE_DEPENDENCY_RETRY_DELAY", 30*time.Second),
			RetryScanAge:            getEnvAsDuration("ENGINE_RETRY_SCAN_AGE", 60*time.Second),
			RetryBatchSize:          getEnvAsInt("ENGINE_RETRY_BATCH_SIZE", 5),
			DependencyFailurePolicy: getEnv("ENGINE_DEPENDENCY_FAILURE_POLICY", "wait"),
		},
		Network: NetworkConfig{
			ProbeHost:     getEnv("NETWORK_PROBE_HOST", "1.1.1.1:443"),
			ProbeURL:      getEnv("NETWORK_PROBE_URL", "https://speed.cloudflare.com/__down?bytes=100000"),
			PollInterval:  getEnvAsDuration("NETWORK_POLL_INTERVAL", 10*time.Second),
			ProbeInterval: getEnvAsDuration("NETWORK_PROBE_INTERVAL", 5*time.Minute),
		},
		Integrity: IntegrityConfig{
			MonitorInterval: getEnvAsDuration("INTEGRITY_MONITOR_INTERVAL", 5*time.Minute),
			AutoCorrect:     getEnvAsBool("INTEGRITY_AUTO_CORRECT", true),
		},
		Collaborator: CollaboratorConfig{
			BaseURL:  getEnv("COLLABORATOR_BASE_URL", ""),
			TokenTTL: getEnvAsDuration("COLLABORATOR_TOKEN_TTL", 15*time.Minute),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
			MaxObservers:    getEnvAsInt("WS_MAX_OBSERVERS", 16),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Auth: AuthConfig{
			TokenSecret: getEnv("TOKEN_SECRET", "dev-secret-change-in-production"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
