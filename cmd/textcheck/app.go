package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antiplagiat/textcheck/internal/config"
	"github.com/antiplagiat/textcheck/internal/database"
	"github.com/antiplagiat/textcheck/internal/history"
	"github.com/antiplagiat/textcheck/internal/lifecycle"
	"github.com/antiplagiat/textcheck/internal/remote"
	"github.com/antiplagiat/textcheck/internal/report"
	"github.com/antiplagiat/textcheck/internal/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	client   *remote.Client
	builder  *request.Builder
	history  *history.Store
	registry *prometheus.Registry
	lcOpts   []lifecycle.Option
	pdf      report.PDFOptions

	closers []io.Closer

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *app {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		pdf:      report.PDFOptions{FontPath: cfg.Report.PDFFont},
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}

	a.client = remote.NewClient(cfg.Remote.BaseURL,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithUserAgent(cfg.Remote.UserAgent),
		remote.WithRateLimit(cfg.Remote.RequestsPerSec, cfg.Remote.Burst),
		remote.WithMetrics(remote.NewMetrics(a.registry)),
	)
	a.builder = request.NewBuilder(request.SettingsFromConfig(cfg.Request))
	a.history = history.NewStore(a.openHistoryBackend())
	a.lcOpts = []lifecycle.Option{
		lifecycle.WithPolling(cfg.Lifecycle.PollInterval, cfg.Lifecycle.MaxPollAttempts),
		lifecycle.WithCallTimeout(cfg.Lifecycle.CallTimeout),
		lifecycle.WithMetrics(lifecycle.NewMetrics(a.registry)),
	}

	return a
}

// openHistoryBackend returns nil when storage cannot be opened; history then degrades to a no-op.
func (a *app) openHistoryBackend() history.Backend {
	hc := a.cfg.History
	switch hc.Backend {
	case "memory":
		return history.NewMemoryBackend()
	case "file":
		b, err := history.NewFileBackend(hc.Path)
		if err != nil {
			log.Warn().Err(err).Msg("History disabled")
			return nil
		}
		return b
	case "sqlite":
		path := hc.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "history.db")
		}
		return a.openSQL(database.SQLite, path)
	case "postgres":
		return a.openSQL(database.Postgres, hc.URL)
	}
	return nil
}

func (a *app) openSQL(dialect database.Dialect, dsn string) history.Backend {
	store, err := database.Open(dialect, dsn)
	if err != nil {
		log.Warn().Err(err).Str("dialect", string(dialect)).Msg("History disabled")
		return nil
	}
	a.closers = append(a.closers, store)
	return store
}

// newLifecycle returns a lifecycle wired to the shared client, builder and history.
func (a *app) newLifecycle(extra ...lifecycle.Option) *lifecycle.Lifecycle {
	opts := append([]lifecycle.Option{
		lifecycle.WithBuilder(a.builder),
		lifecycle.WithHistory(a.history),
	}, a.lcOpts...)
	opts = append(opts, extra...)
	return lifecycle.New(a.client, opts...)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("Close failed")
		}
	}
}

// readText returns the text to check: joined args, the -file contents, or stdin for "-".
func readText(args []string, file string, stdin io.Reader) (string, error) {
	if file != "" && file != "-" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) > 0 && file != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
