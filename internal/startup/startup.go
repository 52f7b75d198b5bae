package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"image-optimizer/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	DataDir     string
	DatabaseDir string
	PresetsPath string
	Port        string
	MetricsPort string

	WorkerSleep    time.Duration
	MetricsEnabled bool

	// Upload limits
	MaxFileMB  int64
	MaxJobMB   int64
	MaxImageMP int
}

// MaxFileBytes returns the per-file upload cap in bytes.
func (c *Config) MaxFileBytes() int64 {
	return c.MaxFileMB * 1024 * 1024
}

// MaxJobBytes returns the per-job upload cap in bytes.
func (c *Config) MaxJobBytes() int64 {
	return c.MaxJobMB * 1024 * 1024
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	dataDir := getEnv("DATA_DIR", "/data")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	presetsPath := getEnv("PRESETS_PATH", "image-presets.json")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	workerSleepStr := getEnv("WORKER_SLEEP", "3s")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	maxFileMB := getEnvInt("MAX_FILE_MB", 100)
	maxJobMB := getEnvInt("MAX_JOB_MB", 200)
	maxImageMP := getEnvInt("MAX_IMAGE_MP", 100)

	logging.Info("  DATA_DIR:        %s", dataDir)
	logging.Info("  DATABASE_DIR:    %s", databaseDir)
	logging.Info("  PRESETS_PATH:    %s", presetsPath)
	logging.Info("  PORT:            %s", port)
	logging.Info("  METRICS_PORT:    %s", metricsPort)
	logging.Info("  METRICS_ENABLED: %v", metricsEnabled)
	logging.Info("  WORKER_SLEEP:    %s", workerSleepStr)
	logging.Info("  MAX_FILE_MB:     %d", maxFileMB)
	logging.Info("  MAX_JOB_MB:      %d", maxJobMB)
	logging.Info("  MAX_IMAGE_MP:    %d", maxImageMP)
	logging.Info("  LOG_LEVEL:       %s", logging.GetLevel())

	workerSleep, err := time.ParseDuration(workerSleepStr)
	if err != nil {
		logging.Warn("  Invalid WORKER_SLEEP, using default: 3s")
		workerSleep = 3 * time.Second
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", dataDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if _, err := os.Stat(presetsPath); err != nil {
		return nil, fmt.Errorf("preset catalog not readable at %s: %w", presetsPath, err)
	}
	logging.Info("  [OK] Preset catalog found")

	return &Config{
		DataDir:        dataDir,
		DatabaseDir:    databaseDir,
		PresetsPath:    presetsPath,
		Port:           port,
		MetricsPort:    metricsPort,
		WorkerSleep:    workerSleep,
		MetricsEnabled: metricsEnabled,
		MaxFileMB:      int64(maxFileMB),
		MaxJobMB:       int64(maxJobMB),
		MaxImageMP:     maxImageMP,
	}, nil
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:  %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:         http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:     http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:     DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogWorkerInit logs worker loop startup
func LogWorkerInit(sleep time.Duration, once bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("WORKER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if once {
		logging.Info("  Mode: one-shot (drain queue and exit)")
	} else {
		logging.Info("  Poll interval: %v", sleep)
	}
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    ____                             ____        __
   /  _/___ ___  ____ _____ ____    / __ \____  / /_
   / // __ '__ \/ __ '/ __ '/ _ \  / / / / __ \/ __/
 _/ // / / / / / /_/ / /_/ /  __/ / /_/ / /_/ / /_
/___/_/ /_/ /_/\__,_/\__, /\___/  \____/ .___/\__/
                    /____/            /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	return os.Remove(testFile)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("  Invalid boolean for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		logging.Warn("  Invalid value for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
