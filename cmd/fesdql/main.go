// Command fesdql inspects the MongoDB binds of a fesdql configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coregx/fesdql"
	"github.com/coregx/fesdql/httpfesdql"
)

// The cli struct represents all command-line commands, fields and flags.
//
//nolint:lll // some tags are long
var cli struct {
	Config  string        `default:""   help:"Configuration file (yaml, json or toml)." type:"path" short:"c"`
	Timeout time.Duration `default:"5s" help:"Timeout of each MongoDB operation."`

	Log struct {
		Level  string `default:"info"    help:"${help_log_level}"`
		Format string `default:"console" help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	Ping  pingCmd  `cmd:"" help:"Ping the default bind and every named bind."`
	Count countCmd `cmd:"" help:"Count documents of a collection."`
	Find  findCmd  `cmd:"" help:"Print one page of documents of a collection."`
	Serve serveCmd `cmd:"" help:"Serve Prometheus metrics and a health endpoint."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	logFormats = []string{"console", "json"}

	kongOptions = []kong.Option{
		kong.Vars{
			"enum_log_format": strings.Join(logFormats, ","),
			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logFormats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("FESDQL"),
	}
)

// app holds what every command needs.
type app struct {
	cfg     fesdql.Config
	reg     *fesdql.Registry
	metrics *fesdql.MetricsCollector
	logger  *zap.Logger
	out     io.Writer
}

func main() {
	kctx := kong.Parse(&cli, kongOptions...)

	logger := setupLogger(cli.Log.Level, cli.Log.Format)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cli.Config, logger, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to set up registry.", zap.Error(err))
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(a)

	closeCtx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	if cerr := a.reg.Close(closeCtx); cerr != nil && !errors.Is(cerr, fesdql.ErrRegistryClosed) {
		logger.Warn("Failed to close registry.", zap.Error(cerr))
	}

	kctx.FatalIfErrorf(err)
}

// setupLogger builds a zap logger with the given level and format.
func setupLogger(level, format string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		log.Fatal(err)
	}

	var config zap.Config
	switch format {
	case "json":
		config = zap.NewProductionConfig()
	default:
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	l, err := config.Build()
	if err != nil {
		log.Fatal(err)
	}
	return l
}

// newApp loads the configuration at path and builds a registry for it.
func newApp(path string, logger *zap.Logger, out io.Writer) (*app, error) {
	cfg, err := fesdql.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg, logger, out)
}

func newAppFromConfig(cfg fesdql.Config, logger *zap.Logger, out io.Writer, opts ...fesdql.Option) (*app, error) {
	collector := fesdql.NewMetrics()

	opts = append([]fesdql.Option{
		fesdql.WithLogger(fesdql.NewZapAdapter(logger.Named("fesdql"))),
		fesdql.WithOperationHook(collector.Hook()),
	}, opts...)

	reg, err := fesdql.NewRegistry(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, reg: reg, metrics: collector, logger: logger, out: out}, nil
}

// bindNames returns the default bind followed by the named binds in order.
func (a *app) bindNames() []string {
	names := make([]string, 0, len(a.cfg.Binds)+1)
	for name := range a.cfg.Binds {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{""}, names...)
}

// session returns the session of bind, opening the registry first.
func (a *app) session(ctx context.Context, bind string) (*fesdql.Session, error) {
	if err := a.reg.Open(ctx); err != nil {
		return nil, err
	}
	return a.reg.GetSession(ctx, bind)
}

// parseFilter decodes a MongoDB extended JSON filter.
func parseFilter(s string) (fesdql.M, error) {
	if s == "" {
		return fesdql.M{}, nil
	}
	var filter fesdql.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &filter); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return filter, nil
}

// pingCmd connects every bind and pings its server.
type pingCmd struct{}

func (pingCmd) Run(ctx context.Context, a *app) error {
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	for _, bind := range a.bindNames() {
		if _, err := a.session(ctx, bind); err != nil {
			return err
		}
	}

	if err := a.reg.Ping(ctx); err != nil {
		return err
	}

	for _, bind := range a.bindNames() {
		name := bind
		if name == "" {
			name = "default"
		}
		fmt.Fprintf(a.out, "%s: ok\n", name)
	}
	return nil
}

// countCmd prints the number of documents matching a filter.
type countCmd struct {
	Collection string `arg:""     help:"Collection name."`
	Bind       string `default:"" help:"Bind name, the default bind if empty."`
	Filter     string `default:"" help:"Filter in MongoDB extended JSON."`
}

func (c *countCmd) Run(ctx context.Context, a *app) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	s, err := a.session(ctx, c.Bind)
	if err != nil {
		return err
	}

	n, err := s.FindCount(ctx, s.Query().Collection(c.Collection).Where(filter))
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, n)
	return nil
}

// findCmd prints one page of documents as extended JSON, one per line.
type findCmd struct {
	Collection string   `arg:""     help:"Collection name."`
	Bind       string   `default:"" help:"Bind name, the default bind if empty."`
	Filter     string   `default:"" help:"Filter in MongoDB extended JSON."`
	Exclude    []string `help:"Fields to leave out."`
	Sort       []string `help:"Sort keys, prefix with '-' for descending."`
	Page       int      `default:"1"  help:"Page number."`
	PerPage    int      `default:"10" help:"Documents per page."`
}

func (c *findCmd) Run(ctx context.Context, a *app) error {
	filter, err := parseFilter(c.Filter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	s, err := a.session(ctx, c.Bind)
	if err != nil {
		return err
	}

	q := s.Query().Collection(c.Collection).Where(filter).Paginate(c.Page, c.PerPage)
	if len(c.Exclude) > 0 {
		q = q.Exclude(c.Exclude...)
	}
	for _, key := range c.Sort {
		if field, ok := strings.CutPrefix(key, "-"); ok {
			q = q.OrderBy(fesdql.Desc(field))
		} else {
			q = q.OrderBy(fesdql.Asc(key))
		}
	}

	page, err := s.FindPaginated(ctx, q)
	if err != nil {
		return err
	}

	for _, doc := range page.Items {
		b, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, string(b))
	}

	a.logger.Debug("Page fetched.",
		zap.Int("page", page.Page), zap.Int("pages", page.Pages()), zap.Int64("total", page.Total))
	return nil
}

// serveCmd serves /metrics and /healthz until interrupted.
type serveCmd struct {
	Addr string `default:"127.0.0.1:8088" help:"Listen address."`
}

func (c *serveCmd) Run(ctx context.Context, a *app) error {
	r := prometheus.NewRegistry()
	r.MustRegister(a.metrics)

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           a.handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Serving metrics.", zap.String("addr", c.Addr))
	return httpfesdql.Serve(ctx, srv, a.reg, cli.Timeout)
}

// handler routes /metrics to gatherer and /healthz to the registry health.
func (a *app) handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := a.reg.Ping(req.Context()); err != nil {
			a.logger.Warn("Health check failed.", zap.Error(err))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return httpfesdql.Middleware(a.reg)(mux)
}
