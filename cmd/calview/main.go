package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"calview/internal/calendar"
	"calview/internal/capture"
	"calview/internal/config"
	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/prefs"
	"calview/internal/refresh"
	"calview/internal/render"
	"calview/internal/source"
	"calview/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	view        string
	capturePath string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("calview starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"prefs", conf.Prefs.Backend,
		"sources", len(conf.Sources),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("calview exited with error", err)
		os.Exit(1)
	}
	appLog.Info("calview exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	store, err := prefs.Open(conf.Prefs.Backend, conf.Prefs.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLog.Error("prefs close failed", err)
		}
	}()

	loc := conf.Location()
	sources, err := source.FromConfig(conf.Sources, conf.CacheDir, loc)
	if err != nil {
		return err
	}

	sess := web.NewSession(store, nil,
		calendar.WithLocation(loc),
		calendar.WithDefaultMode(model.ViewModeOr(conf.DefaultView, model.DefaultViewMode)),
	)
	refresher := refresh.New(sources, sess)

	if _, err := refresher.Refresh(ctx); err != nil {
		// Serving an empty calendar beats not serving at all.
		appLog.Error("initial refresh failed", err)
	}

	if flags.view != "" {
		mode, ok := model.ParseViewMode(flags.view)
		if !ok {
			return calendar.ErrInvalidViewMode
		}
		if _, err := sess.SwitchView(mode); err != nil {
			return err
		}
	}

	if flags.once {
		render.NewText(os.Stdout).Render(sess.Frame())
		return nil
	}

	scheduler, err := refresh.NewScheduler(conf.RefreshCron, loc, refresher)
	if err != nil {
		return err
	}
	watcher := refresh.NewWatcher(refresher.Paths(), 0, func() {
		if _, err := refresher.Refresh(ctx); err != nil {
			appLog.Error("file-triggered refresh failed", err)
		}
	})
	server := web.NewServer(sess, web.Options{Refresher: refresher, BasicAuth: conf.BasicAuth})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, conf.Listen) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if flags.capturePath != "" {
		g.Go(func() error {
			// A failed capture is reported but does not stop the server.
			if err := captureOnce(gctx, conf, flags.capturePath); err != nil && gctx.Err() == nil {
				appLog.Error("calendar capture failed", err, "path", flags.capturePath)
			}
			return nil
		})
	}
	return g.Wait()
}

func captureOnce(ctx context.Context, conf *config.Config, out string) error {
	base := baseURL(conf)
	if err := waitHealthy(ctx, base.String()+"/health"); err != nil {
		return err
	}
	page := *base
	page.Path = "/calendar"
	if a := conf.BasicAuth; a != nil && a.Username != "" && a.Password != "" {
		page.User = url.UserPassword(a.Username, a.Password)
	}
	return capture.Page(ctx, capture.Options{URL: page.String(), OutputPath: out})
}

func baseURL(conf *config.Config) *url.URL {
	host := conf.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return &url.URL{Scheme: "http", Host: host}
}

func waitHealthy(ctx context.Context, healthURL string) error {
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return errors.New("server did not become healthy")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch sources, print the current view as text and exit")
	flag.StringVar(&cfg.view, "view", "", "Switch to this view mode (day, week, month) at startup")
	flag.StringVar(&cfg.capturePath, "capture", "", "Write a PNG screenshot of /calendar to this path once serving")

	flag.Parse()

	return cfg
}
