package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

var batchLogDir = "."

// InitBatchLog sets the directory for per-user batch logs.
func InitBatchLog(dir string) error {
	if dir != "" {
		batchLogDir = dir
	}
	return os.MkdirAll(batchLogDir, 0755)
}

// getLogPath returns the log file path for a user.
func getLogPath(userID int64) string {
	return filepath.Join(batchLogDir, fmt.Sprintf("batch_%d.log", userID))
}

// StartBatchLog truncates the log file for a user, starting a fresh log.
func StartBatchLog(userID int64, images int) {
	logPath := getLogPath(userID)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to start batch log")
		return
	}
	defer f.Close()

	header := fmt.Sprintf("=== Batch Log ===\nUser: %d\nImages: %d\nStarted: %s\n\n",
		userID, images, time.Now().Format("2006-01-02 15:04:05"))
	f.WriteString(header)
}

// appendLog writes a log entry to the user's batch log file.
func appendLog(userID int64, prefix, msg string) {
	f, err := os.OpenFile(getLogPath(userID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to write batch log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s %s\n", timestamp, prefix, msg)
	f.WriteString(line)
}

// LogLLM logs a raw description returned by the service.
func LogLLM(userID int64, format string, args ...any) {
	appendLog(userID, "LLM     ", fmt.Sprintf(format, args...))
}

// LogResult logs the fields extracted for one image.
func LogResult(userID int64, format string, args ...any) {
	appendLog(userID, "RESULT  ", fmt.Sprintf(format, args...))
}

// LogError logs errors.
func LogError(userID int64, format string, args ...any) {
	appendLog(userID, "ERROR   ", fmt.Sprintf(format, args...))
}

// LogInternal logs internal processing.
func LogInternal(userID int64, format string, args ...any) {
	appendLog(userID, "INTERNAL", fmt.Sprintf(format, args...))
}
