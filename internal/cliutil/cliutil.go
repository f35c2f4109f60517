// Package cliutil holds small helpers shared by exastash's CLI entrypoint,
// the same role cmd/common played for onedriver's two binaries.
package cliutil

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StringToLevel converts a string to a zerolog.Level, falling back to debug
// (and logging the parse failure) on an unrecognized value.
func StringToLevel(input string) zerolog.Level {
	level, err := zerolog.ParseLevel(input)
	if err != nil {
		log.Error().Err(err).Str("input", input).Msg("could not parse log level, defaulting to \"debug\"")
		return zerolog.DebugLevel
	}
	return level
}

// LogLevels returns the logging levels accepted by StringToLevel, in
// increasing order of severity.
func LogLevels() []string {
	return []string{"trace", "debug", "info", "warn", "error", "fatal"}
}
