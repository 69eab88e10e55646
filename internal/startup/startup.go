package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-optimizer/internal/cache"
	"media-optimizer/internal/ledger"
	"media-optimizer/internal/logging"
	"media-optimizer/internal/memory"
	"media-optimizer/internal/optimizer"
	"media-optimizer/internal/pipeline"
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

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Default values for settings without an obvious zero.
const (
	DefaultRedisTTL = 30 * 24 * time.Hour
)

// Config holds all build configuration. Env vars provide the defaults,
// command-line flags override individual fields afterwards.
type Config struct {
	OutputDir       string
	CacheDir        string
	ProfileFile     string
	GifsiclePath    string
	GifsicleTimeout time.Duration
	// Workers is 0 when unset, meaning one per CPU.
	Workers int
	// LosslessThresholdKB overrides the profile's threshold when > 0.
	LosslessThresholdKB int
	RedisURL            string
	RedisTTL            time.Duration
	LedgerEnabled       bool
	MetricsFile         string
	MetricsAddr         string
	DryRun              bool

	// Derived paths
	EntriesDir string
	LedgerPath string
}

// LoadConfig reads configuration from environment variables. It does no
// I/O beyond resolving the default cache directory.
func LoadConfig() (*Config, error) {
	defaultCache, err := cache.DefaultDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}

	cfg := &Config{
		OutputDir:           getEnv("OUTPUT_DIR", ""),
		CacheDir:            defaultCache,
		ProfileFile:         getEnv("PROFILE_FILE", ""),
		GifsiclePath:        getEnv("GIFSICLE_PATH", "gifsicle"),
		GifsicleTimeout:     getEnvDuration("GIFSICLE_TIMEOUT", optimizer.DefaultTimeout),
		Workers:             getEnvInt("MEDIA_WORKERS", 0),
		LosslessThresholdKB: getEnvInt("LOSSLESS_THRESHOLD_KB", 0),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTTL:            getEnvDuration("REDIS_TTL", DefaultRedisTTL),
		LedgerEnabled:       getEnvBool("LEDGER_ENABLED", true),
		MetricsFile:         getEnv("METRICS_FILE", ""),
		MetricsAddr:         getEnv("METRICS_ADDR", ""),
	}
	if cfg.Workers < 0 {
		logging.Warn("Invalid MEDIA_WORKERS %d, using default", cfg.Workers)
		cfg.Workers = 0
	}
	cfg.derivePaths()
	return cfg, nil
}

func (c *Config) derivePaths() {
	c.EntriesDir = filepath.Join(c.CacheDir, "entries")
	c.LedgerPath = filepath.Join(c.CacheDir, ledger.FileName)
}

// Prepare resolves paths, creates the cache directory and logs the
// effective configuration. Call it after flags have been applied.
func (c *Config) Prepare() error {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required (argument or OUTPUT_DIR)")
	}

	var err error
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	c.derivePaths()

	logging.Info("  OUTPUT_DIR:               %s", c.OutputDir)
	logging.Info("  MEDIA_OPTIMIZER_CACHE_DIR: %s", c.CacheDir)
	logging.Info("  PROFILE_FILE:             %s", valueOr(c.ProfileFile, "(built-in)"))
	logging.Info("  GIFSICLE_PATH:            %s", c.GifsiclePath)
	logging.Info("  GIFSICLE_TIMEOUT:         %s", c.GifsicleTimeout)
	logging.Info("  MEDIA_WORKERS:            %s", workersString(c.Workers))
	if c.LosslessThresholdKB > 0 {
		logging.Info("  LOSSLESS_THRESHOLD_KB:    %d", c.LosslessThresholdKB)
	}
	logging.Info("  REDIS_URL:                %s", valueOr(redactURL(c.RedisURL), "(disabled)"))
	logging.Info("  LEDGER_ENABLED:           %v", c.LedgerEnabled)
	logging.Info("  METRICS_FILE:             %s", valueOr(c.MetricsFile, "(disabled)"))
	logging.Info("  METRICS_ADDR:             %s", valueOr(c.MetricsAddr, "(disabled)"))
	logging.Info("  DRY_RUN:                  %v", c.DryRun)
	logging.Info("  LOG_LEVEL:                %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := pipeline.EnsureOutputDir(c.OutputDir); err != nil {
		return err
	}
	logging.Info("  [OK] Output directory exists")

	if err := ensureDirectory(c.EntriesDir, "cache"); err != nil {
		return fmt.Errorf("cache directory error: %w", err)
	}
	logging.Debug("  Testing cache directory write access...")
	if err := testWriteAccess(c.EntriesDir); err != nil {
		return fmt.Errorf("cache directory is not writable: %w", err)
	}
	logging.Info("  [OK] Cache directory is writable")

	if c.LedgerEnabled {
		c.LedgerEnabled = setupOptionalLedger(c.CacheDir)
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Remote cache: %s", enabledString(c.RedisURL != ""))
	logging.Info("    Ledger:       %s", enabledString(c.LedgerEnabled))
	logging.Info("    Metrics:      %s", enabledString(c.MetricsFile != "" || c.MetricsAddr != ""))
	return nil
}

func setupOptionalLedger(dir string) bool {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		logging.Warn("    Ledger directory is not writable: %v", err)
		logging.Warn("    Ledger will be disabled")
		return false
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("    failed to remove test file %s: %v", testFile, err)
	}
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func workersString(n int) string {
	if n == 0 {
		return fmt.Sprintf("auto (%d)", runtime.GOMAXPROCS(0))
	}
	return strconv.Itoa(n)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// redactURL hides the password of a redis URL.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon] + ":***"
	}
	return raw[:scheme+3] + userinfo + raw[at:]
}

// LogStart prints the banner and system information.
func LogStart() {
	printBanner()
	logSystemInfo()
}

// LogVipsInit logs libvips initialization
func LogVipsInit(available bool, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("LIBVIPS INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if !available {
		logging.Warn("  libvips is not available")
		logging.Warn("  Derivatives cannot be encoded; PNG/JPEG recompression falls back to pure Go")
		return
	}
	logging.Info("  [OK] libvips initialized in %v", duration)
}

// LogGifsicleInit checks that gifsicle can be run.
func LogGifsicleInit(path string) {
	if err := checkGifsicle(path); err != nil {
		logging.Warn("  gifsicle check failed: %v", err)
		logging.Warn("  Animated GIF originals will fail to recompress")
		return
	}
	logging.Info("  [OK] gifsicle is available")
}

// LogLedgerInit logs ledger initialization
func LogLedgerInit(path string, duration time.Duration) {
	logging.Info("  [OK] Ledger %s opened in %v", path, duration)
}

// LogMemoryConfig logs what memory.ConfigureFromEnv decided.
func LogMemoryConfig(result memory.ConfigResult) {
	if !result.Configured {
		logging.Debug("  Memory limit: not configured")
		return
	}
	logging.Info("  Memory limit (%s): GOMEMLIMIT=%s, libvips cache=%s",
		result.Source, memory.FormatBytes(result.GoMemLimit), memory.FormatBytes(int64(result.VipsCacheBytes)))
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes, err
}

// LogMetricsServer logs the routes served on addr.
func LogMetricsServer(addr string, router *mux.Router) {
	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	for _, route := range routes {
		logging.Info("    %-6s http://%s%s", route.Method, displayAddr(addr), route.Path)
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// LogBuildComplete logs the summary of a finished build.
func LogBuildComplete(s pipeline.Summary) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	if s.DryRun {
		logging.Info("DRY RUN COMPLETE")
	} else {
		logging.Info("BUILD COMPLETE")
	}
	logging.Info("------------------------------------------------------------")
	logging.Info("  Pages:        %d (%d rewritten)", s.Pages, s.Rewritten)
	logging.Info("  References:   %d", s.References)
	logging.Info("  Derivatives:  %d", s.Derivatives)
	if !s.DryRun {
		logging.Info("  Cache hits:   %d", s.Hits)
		logging.Info("  Transcodes:   %d", s.Misses)
	}
	logging.Info("  Duration:     %v", s.Duration.Round(time.Millisecond))
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
                    ___                 __  _           _
   ____ ___  ___  / (_)___ _   ____  / /_(_)___ ___  (_)___  ___  _____
  / __ '__ \/ _ \/ / / __ '/  / __ \/ __/ / __ '__ \/ /_  / / _ \/ ___/
 / / / / / /  __/ / / /_/ /  / /_/ / /_/ / / / / / / / / /_/  __/ /
/_/ /_/ /_/\___/_/_/\__,_/   \____/\__/_/_/ /_/ /_/_/ /___/\___/_/

------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
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

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

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
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkGifsicle(name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", name)
	}
	logging.Debug("  gifsicle path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return fmt.Errorf("failed to get gifsicle version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  gifsicle version: %s", strings.TrimSpace(lines[0]))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
