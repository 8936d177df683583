package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/meridianhq/pulse/internal/seeder"
)

// Default configuration constants.
const (
	defaultProjects   = 5
	defaultSprints    = 6
	defaultResources  = 10
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		token     = flag.String("token", "", "Bearer token for write endpoints")
		projects  = flag.Int("projects", defaultProjects, "Number of projects to create")
		sprints   = flag.Int("sprints", defaultSprints, "Sprints with health records per project")
		resources = flag.Int("resources", defaultResources, "Number of resources to create")
		workers   = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile   = flag.String("log", "", "Log file for run output (default: seed_log_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seeder.ShowHelp()
		return
	}

	if err := seeder.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &seeder.Config{
		BaseURL:           *baseURL,
		Token:             *token,
		Projects:          *projects,
		SprintsPerProject: *sprints,
		Resources:         *resources,
		Workers:           *workers,
		Timeout:           *timeout,
		LogFile:           *logFile,
		Verbose:           *verbose,
	}

	if err := seeder.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Seeding failed: " + err.Error() + "\n")
		return
	}
}
