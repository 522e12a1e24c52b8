// Package config loads the gateway's runtime settings from flags and
// environment variables, using the standard library's flag package
// with package-level defaults, plus an environment-variable override
// pass since the gateway is meant to run as a container, not an
// interactively flagged CLI tool.
package config

import (
	"flag"
	"os"
	"time"
)

const (
	DefaultTCPPort       = "5027"
	DefaultAPIPort       = "3000"
	DefaultMongoURI      = "mongodb://localhost:27017"
	DefaultMongoDB       = "telematics"
	DefaultQueueDBPath   = "./queue.db"
	DefaultLogsDir       = "./logs"
	DefaultLivenessEvery = 5 * time.Second
)

// Config is every externally-tunable gateway setting.
type Config struct {
	TCPPort  string // device-facing TCP listener
	APIPort  string // HTTP read surface
	APIKey   string // required value of the X-API-Key header

	MongoURI string
	MongoDB  string

	QueueDBPath string // bbolt write-behind queue file
	LogsDir     string // hourly raw-frame capture logs

	LiveFeedMQTTBroker string // empty disables the live feed
	LiveFeedMQTTTopic  string

	LogLevel string
}

// Load parses flags (which may override defaults) and then lets
// environment variables, where set, take precedence over either.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("telematics-gateway", flag.ContinueOnError)

	tcpPort := fs.String("tcp-port", DefaultTCPPort, "TCP port devices connect to")
	apiPort := fs.String("api-port", DefaultAPIPort, "HTTP port the read API listens on")
	apiKey := fs.String("api-key", "", "required value of the X-API-Key header")
	mongoURI := fs.String("mongo-uri", DefaultMongoURI, "MongoDB connection string")
	mongoDB := fs.String("mongo-db", DefaultMongoDB, "MongoDB database name")
	queueDBPath := fs.String("queue-db", DefaultQueueDBPath, "bbolt write-behind queue file path")
	logsDir := fs.String("logs-dir", DefaultLogsDir, "directory for hourly raw-frame capture logs")
	mqttBroker := fs.String("livefeed-broker", "", "MQTT broker for the optional live feed (empty disables it)")
	mqttTopic := fs.String("livefeed-topic", "telematics/records", "MQTT topic for the optional live feed")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		TCPPort:            envOr("TCP_PORT", *tcpPort),
		APIPort:            envOr("API_PORT", *apiPort),
		APIKey:             envOr("API_KEY", *apiKey),
		MongoURI:           envOr("MONGO_URI", *mongoURI),
		MongoDB:            envOr("MONGO_DB", *mongoDB),
		QueueDBPath:        envOr("QUEUE_DB_PATH", *queueDBPath),
		LogsDir:            envOr("LOGS_DIR", *logsDir),
		LiveFeedMQTTBroker: envOr("LIVEFEED_MQTT_BROKER", *mqttBroker),
		LiveFeedMQTTTopic:  envOr("LIVEFEED_MQTT_TOPIC", *mqttTopic),
		LogLevel:           envOr("LOG_LEVEL", *logLevel),
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
