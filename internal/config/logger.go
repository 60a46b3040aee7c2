package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string
	Format     string // "json" or "console"
	TimeFormat string
	Output     io.Writer
}

// InitLogger initializes the global logger
func InitLogger(level, format string) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	log.Info().
		Str("level", logLevel.String()).
		Str("format", format).
		Msg("logger initialized")
}

// NewLogger creates a new logger scoped to a component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewAgentLogger creates a logger scoped to a registered consensus/messaging agent.
func NewAgentLogger(agentID, agentType string) zerolog.Logger {
	return log.With().
		Str("component", "agent").
		Str("agent_id", agentID).
		Str("agent_type", agentType).
		Logger()
}

// NewSourceLogger creates a logger scoped to a regulatory source being monitored.
func NewSourceLogger(sourceID string) zerolog.Logger {
	return log.With().
		Str("component", "monitor").
		Str("source_id", sourceID).
		Logger()
}
