package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dl-alexandre/memora/internal/api"
	"github.com/dl-alexandre/memora/internal/auth"
	"github.com/dl-alexandre/memora/internal/config"
	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/metrics"
	syncengine "github.com/dl-alexandre/memora/internal/sync"
	"github.com/dl-alexandre/memora/internal/sync/exclude"
	"github.com/dl-alexandre/memora/internal/sync/executor"
	"github.com/dl-alexandre/memora/internal/sync/index"
	"github.com/dl-alexandre/memora/internal/sync/scanner"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <root>",
	Short: "Mirror a directory to the metadata service",
	Long: `Scan <root> immediately and then once per interval, registering new
directories and uploading new files. Paths already in the local index are
skipped. Runs until interrupted unless --once is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

type runFlagValues struct {
	token       string
	interval    time.Duration
	workers     int
	once        bool
	indexPath   string
	exclude     []string
	metricsAddr string
}

var runFlags runFlagValues

func init() {
	runCmd.Flags().StringVar(&runFlags.token, "token", "", "Bearer token (overrides MEMORA_TOKEN and stored credentials)")
	runCmd.Flags().DurationVar(&runFlags.interval, "interval", 0, "Scan interval (default from config, 5s)")
	runCmd.Flags().IntVar(&runFlags.workers, "workers", 0, "Concurrent file uploads (default from config, 4)")
	runCmd.Flags().BoolVar(&runFlags.once, "once", false, "Run a single scan and exit")
	runCmd.Flags().StringVar(&runFlags.indexPath, "index", "", "Path to the local index database")
	runCmd.Flags().StringSliceVar(&runFlags.exclude, "exclude", nil, "Additional exclude patterns")
	runCmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(runCmd)
}

// runSettings is everything an agent needs, after flags, env and config
// have been merged
type runSettings struct {
	Root             string
	Credentials      *types.Credentials
	CredentialSource string
	ServerURL        string
	Interval         time.Duration
	Workers          int
	MaxRetries       int
	RetryDelay       time.Duration
	Timeout          time.Duration
	IndexPath        string
	LogFile          string
	Exclude          []string
	MetricsAddr      string
	Once             bool
}

func runRun(cmd *cobra.Command, args []string) error {
	out := newOutput()

	mgr := auth.NewManager(getConfigDir())
	settings, err := resolveRunSettings(appConfig, args[0], runFlags, globalFlags, mgr)
	if err != nil {
		return writeError(out, "run", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rotateOnHangup(ctx, logger)

	summary, err := runAgent(ctx, settings, logger, debugTransport)
	if err != nil {
		return writeError(out, "run", err)
	}
	if settings.Once {
		return out.WriteSuccess("run", summary)
	}
	return nil
}

func resolveRunSettings(cfg *config.Config, rootArg string, flags runFlagValues, global types.GlobalFlags, mgr *auth.Manager) (*runSettings, error) {
	root, err := scanner.ResolveRoot(rootArg)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).
			WithContext("root", rootArg).
			Build(), err)
	}

	creds, source, err := mgr.ResolveCredentials(flags.token, global.Profile)
	if err != nil {
		return nil, err
	}

	serverURL := cfg.ServerURL
	if creds.ServerURL != "" && source == auth.SourceStorage {
		serverURL = creds.ServerURL
	}

	indexPath := flags.indexPath
	if indexPath == "" {
		if indexPath, err = cfg.GetIndexPath(); err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
		}
	}
	if indexPath, err = filepath.Abs(indexPath); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).Build(), err)
	}

	logFile := global.LogFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	if logFile != "" {
		if logFile, err = filepath.Abs(logFile); err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).Build(), err)
		}
	}

	s := &runSettings{
		Root:             root,
		Credentials:      creds,
		CredentialSource: source,
		ServerURL:        serverURL,
		Interval:         cfg.GetScanInterval(),
		Workers:          cfg.Workers,
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.GetRetryBaseDelay(),
		Timeout:          cfg.GetRequestTimeout(),
		IndexPath:        indexPath,
		LogFile:          logFile,
		Exclude:          append(append([]string(nil), cfg.ExcludePatterns...), flags.exclude...),
		MetricsAddr:      cfg.MetricsAddr,
		Once:             flags.once,
	}
	if flags.interval != 0 {
		s.Interval = flags.interval
	}
	if flags.workers != 0 {
		s.Workers = flags.workers
	}
	if flags.metricsAddr != "" {
		s.MetricsAddr = flags.metricsAddr
	}

	if s.Interval <= 0 {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "--interval must be positive").Build())
	}
	if s.Workers < 1 {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "--workers must be at least 1").Build())
	}
	return s, nil
}

// agentMatcher excludes the user's patterns plus the agent's own files when
// they live under the root
func agentMatcher(s *runSettings) *exclude.Matcher {
	var own []string
	for _, p := range []string{s.IndexPath, s.IndexPath + "-wal", s.IndexPath + "-shm", s.IndexPath + "-journal", s.LogFile} {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		own = append(own, filepath.ToSlash(rel))
	}
	return exclude.New(s.Exclude).With(own...)
}

// runAgent wires the index, client, pipeline and engine, then runs one tick
// or loops until ctx is cancelled
func runAgent(ctx context.Context, s *runSettings, logger logging.Logger, debug *logging.DebugTransport) (syncengine.Summary, error) {
	db, err := index.Open(s.IndexPath)
	if err != nil {
		return syncengine.Summary{}, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeLocalStore,
			"failed to open index: "+err.Error()).
			WithContext("index", s.IndexPath).
			Build(), err)
	}
	defer db.Close()

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = s.Workers + 1
	var transport http.RoundTripper = base
	if debug != nil {
		transport = debug.Wrap(base)
	}

	client, err := api.NewClient(api.ClientOptions{
		BaseURL:     s.ServerURL,
		Credentials: s.Credentials,
		Transport:   transport,
		Timeout:     s.Timeout,
		MaxRetries:  s.MaxRetries,
		RetryDelay:  s.RetryDelay,
		Logger:      logger,
	})
	if err != nil {
		return syncengine.Summary{}, err
	}

	m := metrics.New()
	if s.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(s.MetricsAddr, m, logger)
		if err != nil {
			return syncengine.Summary{}, err
		}
		defer stopMetrics()
	}

	engine, err := syncengine.NewEngine(db, executor.New(client, db, logger), syncengine.Options{
		Root:     s.Root,
		Interval: s.Interval,
		Workers:  s.Workers,
		Matcher:  agentMatcher(s),
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return syncengine.Summary{}, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
	}

	logger.Info("Agent configured",
		logging.F("root", s.Root),
		logging.F("server", s.ServerURL),
		logging.F("index", s.IndexPath),
		logging.F("workers", s.Workers),
		logging.F("credentialSource", s.CredentialSource),
	)

	if s.Once {
		summary, err := engine.Tick(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "scan cancelled").Build(), err)
			}
			return summary, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, err.Error()).
				WithContext("root", s.Root).
				Build(), err)
		}
		return summary, nil
	}
	return syncengine.Summary{}, engine.Run(ctx)
}

func serveMetrics(addr string, m *metrics.Metrics, logger logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig,
			"failed to listen for metrics: "+err.Error()).Build(), err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", logging.F("error", err))
		}
	}()
	logger.Info("Serving metrics", logging.F("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
