// Package logging builds the process logger. Daemon and client render
// to console windows that belong to the user, so log output goes to a
// timestamped file under logs/ instead of stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const dirName = "logs"

// Init opens logs/<timestamp>_<name>.log next to the working directory
// and returns a logger writing to it. Debug lowers the level threshold
// from info to debug.
func Init(name string, debug bool) (zerolog.Logger, error) {
	if err := os.MkdirAll(dirName, 0o755); err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02_15-04-05"), name)
	f, err := os.OpenFile(filepath.Join(dirName, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(f).Level(level).With().Timestamp().Str("component", name).Logger(), nil
}
