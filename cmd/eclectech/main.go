// Command eclectech serves the accessibility overlay: page sessions over
// websocket, the rewrite REST API and live captions. It also offers one-shot
// rewrites and cache maintenance from the shell.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/eclectech/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	os.Exit(run(os.Args, env{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		registry: newRegistry,
	}))
}

// env holds the process streams and the provider registry constructor so
// commands can be exercised without touching the real process.
type env struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	registry func() *config.Registry
}

func run(args []string, e env) int {
	if err := newCLIApp(e).Run(args); err != nil {
		fmt.Fprintf(e.stderr, "eclectech: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}
