package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/MrWong99/eclectech/internal/app"
	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/rewrite"
)

const shutdownTimeout = 15 * time.Second

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e env) *cli.App {
	a := &cli.App{
		Name:      "eclectech",
		Usage:     "Accessibility overlay server",
		Version:   Version,
		Reader:    e.stdin,
		Writer:    e.stdout,
		ErrWriter: e.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "Path to the YAML or TOML configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "Override server.log_level: debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			serveCmd(e),
			rewriteCmd(e),
			cacheCmd(e),
		},
	}
	// Errors are reported by run.
	a.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return a
}

// loadConfig reads the file named by --config. A missing file at the
// default path yields the built-in defaults; a missing file that was asked
// for explicitly is an error. The returned path is empty when no file was
// read.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !c.IsSet("config"):
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		path = ""
	default:
		return nil, "", err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyFlags lets command-line flags win over the file.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if !c.IsSet("log-level") {
		return nil
	}
	lvl := config.LogLevel(strings.ToLower(c.String("log-level")))
	if !lvl.IsValid() {
		return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", c.String("log-level"))
	}
	cfg.Server.LogLevel = lvl
	return nil
}

// setupLogger installs the default logger at cfg's level and returns the
// level var that controls it.
func setupLogger(e env, cfg *config.Config) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(e.stderr, lv))
	return lv
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd(e env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the overlay server until interrupted",
		Action: func(c *cli.Context) error {
			cfg, path, err := loadConfig(c)
			if err != nil {
				return err
			}
			lv := setupLogger(e, cfg)
			slog.Info("eclectech starting",
				"version", Version,
				"config", path,
				"listen_addr", cfg.Server.ListenAddr,
				"log_level", cfg.Server.LogLevel,
			)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceName:    cfg.Telemetry.ServiceName,
				ServiceVersion: Version,
			})
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() {
				if err := tel.Shutdown(context.Background()); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()

			providers, err := app.BuildProviders(cfg, e.registry())
			if err != nil {
				return err
			}
			application, err := app.New(ctx, cfg, providers, app.WithLevelVar(lv))
			if err != nil {
				return err
			}

			if path != "" {
				w, err := config.NewWatcher(path, func(prev, next *config.Config) {
					cp := *next
					if err := applyFlags(c, &cp); err != nil {
						slog.Warn("ignoring reloaded config", "err", err)
						return
					}
					application.ApplyConfig(ctx, prev, &cp)
				})
				if err != nil {
					slog.Warn("config hot reload disabled", "err", err)
				} else {
					defer w.Stop()
				}
			}

			printStartupSummary(e.stdout, cfg)
			slog.Info("server ready, press Ctrl+C to shut down")

			runErr := application.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				runErr = nil
			}

			slog.Info("stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(runErr, application.Shutdown(shutdownCtx))
		},
	}
}

// ── rewrite ───────────────────────────────────────────────────────────────────

func rewriteCmd(e env) *cli.Command {
	return &cli.Command{
		Name:  "rewrite",
		Usage: "Rewrite one document (reads markup from --file or stdin, writes to stdout)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Markup file to rewrite"},
			&cli.StringSliceFlag{Name: "feature", Aliases: []string{"F"}, Usage: "Feature to apply (repeatable): high-contrast|large-font|screen-reader"},
			&cli.BoolFlag{Name: "reuse", Usage: "Answer from the cache when a rewrite for the same features exists"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			setupLogger(e, cfg)

			set := feature.NewSet()
			for _, name := range c.StringSlice("feature") {
				f, ok := feature.Parse(name)
				if !ok {
					return fmt.Errorf("unknown feature %q", name)
				}
				set.Add(f)
			}

			markup, err := readMarkup(e.stdin, c.String("file"))
			if err != nil {
				return err
			}

			rs := set.RewriteSet()
			if rs.IsEmpty() {
				_, err := io.WriteString(e.stdout, markup)
				return err
			}

			ctx := c.Context
			providers, err := app.BuildProviders(cfg, e.registry())
			if err != nil {
				return err
			}
			application, err := app.New(ctx, cfg, providers)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = application.Shutdown(shutdownCtx)
			}()

			fp := rs.Fingerprint()
			cache := application.Cache()
			if c.Bool("reuse") {
				out, ok, err := cache.Get(ctx, fp)
				if err != nil {
					slog.Warn("rewrite cache read failed", "fingerprint", fp, "err", err)
				}
				if ok {
					slog.Debug("answered from cache", "fingerprint", fp)
					publishRewrite(ctx, application.Publisher(), fp, len(out), true)
					_, err := io.WriteString(e.stdout, out)
					return err
				}
			}

			out, err := application.Rewriter().Rewrite(ctx, markup, set)
			if err != nil {
				return err
			}
			if err := cache.Put(ctx, fp, out); err != nil {
				slog.Warn("rewrite not cached", "fingerprint", fp, "err", err)
			}
			publishRewrite(ctx, application.Publisher(), fp, len(out), false)
			_, err = io.WriteString(e.stdout, out)
			return err
		},
	}
}

func readMarkup(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no markup given; pipe it via stdin or use --file")
	}
	return string(data), nil
}

func publishRewrite(ctx context.Context, pub events.Publisher, fp string, size int, cached bool) {
	ev := events.RewriteCompleted{Fingerprint: fp, Bytes: size, Cached: cached}
	if err := pub.Publish(ctx, events.TopicRewriteCompleted, ev); err != nil {
		slog.Warn("publishing rewrite event failed", "err", err)
	}
}

// ── cache ─────────────────────────────────────────────────────────────────────

func cacheCmd(e env) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the rewrite cache",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached rewrites",
				Action: withCache(e, func(c *cli.Context, cache *rewrite.Cache) error {
					entries, err := cache.List(c.Context)
					if err != nil {
						return err
					}
					if len(entries) == 0 {
						fmt.Fprintln(e.stdout, "no cached rewrites")
						return nil
					}
					tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "FINGERPRINT\tSIZE\tUPDATED")
					for _, en := range entries {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", en.Fingerprint, humanize.Bytes(uint64(en.Size)), humanize.Time(en.UpdatedAt))
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "get",
				Usage:     "Print the cached rewrite for a fingerprint",
				ArgsUsage: "<fingerprint>",
				Action: withCache(e, func(c *cli.Context, cache *rewrite.Cache) error {
					fp, err := fingerprintArg(c)
					if err != nil {
						return err
					}
					markup, ok, err := cache.Get(c.Context, fp)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("no cached rewrite for %q", fp)
					}
					_, err = io.WriteString(e.stdout, markup)
					return err
				}),
			},
			{
				Name:      "delete",
				Usage:     "Remove the cached rewrite for a fingerprint",
				ArgsUsage: "<fingerprint>",
				Action: withCache(e, func(c *cli.Context, cache *rewrite.Cache) error {
					fp, err := fingerprintArg(c)
					if err != nil {
						return err
					}
					return cache.Invalidate(c.Context, fp)
				}),
			},
			{
				Name:  "purge",
				Usage: "Remove every cached rewrite",
				Action: withCache(e, func(c *cli.Context, cache *rewrite.Cache) error {
					n, err := cache.Purge(c.Context)
					fmt.Fprintf(e.stdout, "purged %d cached %s\n", n, plural(n, "rewrite", "rewrites"))
					return err
				}),
			},
		},
	}
}

// withCache opens the configured cache store around fn.
func withCache(e env, fn func(*cli.Context, *rewrite.Cache) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, _, err := loadConfig(c)
		if err != nil {
			return err
		}
		setupLogger(e, cfg)

		kv, err := app.OpenStore(c.Context, cfg.Cache)
		if err != nil {
			return err
		}
		defer kv.Close()
		return fn(c, rewrite.NewCache(kv, rewrite.WithMinLength(cfg.Rewrite.MinCacheLength)))
	}
}

// fingerprintArg normalises the first argument to a canonical rewrite
// fingerprint.
func fingerprintArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("exactly one fingerprint argument is required")
	}
	fp := feature.ParseFingerprint(c.Args().First()).RewriteSet().Fingerprint()
	if fp == "" {
		return "", fmt.Errorf("%q names no rewrite feature", c.Args().First())
	}
	return fp, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
