package seeder

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/meridianhq/pulse/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "seed_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the seeding tool.
func ShowHelp() {
	os.Stdout.WriteString(`Pulse Seeding Tool
==================

Populates a running Pulse instance with demo projects, sprints, health
records, resources, and allocations, then spot-checks the results.

Usage:
  go run cmd/seed/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -token string
        Bearer token for write endpoints (omit when auth is disabled)
  -projects int
        Number of projects to create (default 5)
  -sprints int
        Sprints with health records per project (default 6)
  -resources int
        Number of resources to create (default 10)
  -workers int
        Number of concurrent workers (default NumCPU)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for run output (default: seed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help

Examples:
  go run cmd/seed/main.go
  go run cmd/seed/main.go -projects 20 -sprints 10 -resources 50
  go run cmd/seed/main.go -url http://staging:9080 -token s3cret
`)
}
