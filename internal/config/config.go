package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time expresses the duration-valued tunables
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  The admission and saga
// tunables carry defaults so a minimal .env (database, secret, port)
// is enough to boot a dev instance; the required variables are
// enforced by must() and missing values stop the process.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to sign admission tokens

	// Admission queue tunables.
	QueueMaxActive     int64         // ACTIVE tokens allowed per concert
	QueueBatchSize     int           // tokens admitted per activation batch
	QueueBatchInterval time.Duration // time between activation batches
	ActiveTokenTTL     time.Duration // lease granted on activation
	TokenRetention     time.Duration // how long finished tokens stay readable

	// Saga tunables.
	SagaContextTTL time.Duration // retention of saga contexts in Redis
	SagaStuckAfter time.Duration // age after which the recovery sweep force-fails a saga
}

// Load reads configuration values from environment variables and
// returns a Config.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),      // environment (dev/test/prod)
		Port:      must("APP_PORT"),     // port to bind the HTTP server
		DBUser:    must("DB_USER"),      // database user
		DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:    must("DB_HOST"),      // database host
		DBPort:    must("DB_PORT"),      // database port
		DBName:    must("DB_NAME"),      // database name
		JWTSecret: must("JWT_SECRET"),   // secret for admission token signing

		QueueMaxActive:     int64(envInt("QUEUE_MAX_ACTIVE", 100)),
		QueueBatchSize:     envInt("QUEUE_BATCH_SIZE", 10),
		QueueBatchInterval: envDuration("QUEUE_BATCH_INTERVAL_SEC", 60*time.Second),
		ActiveTokenTTL:     envDuration("ACTIVE_TOKEN_TTL_SEC", 10*time.Minute),
		TokenRetention:     envDuration("TOKEN_RETENTION_SEC", 24*time.Hour),

		SagaContextTTL: envDuration("SAGA_CONTEXT_TTL_SEC", 24*time.Hour),
		SagaStuckAfter: envDuration("SAGA_STUCK_AFTER_SEC", 30*time.Minute),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envInt reads an optional integer variable, falling back to def when
// unset.  An unparseable value is fatal rather than silently ignored.
func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// envDuration reads an optional variable expressed in whole seconds,
// falling back to def when unset.
func envDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		log.Fatalf("invalid seconds value for %s: %q", key, s)
	}
	return time.Duration(n) * time.Second
}
