// Package main provides the CLI entry point for kamishibai.
package main

import (
	"fmt"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/kamishibai/pkg/adapters/logger"
	"github.com/user/kamishibai/pkg/config"
	"github.com/user/kamishibai/pkg/ports"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   l10n.T("YAML configuration file"),
	}

	return &cli.App{
		Name:    "kamishibai",
		Usage:   l10n.T("Virtual camera that streams a still image or a live feed"),
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  l10n.T("Run the virtual camera"),
				Flags:  append([]cli.Flag{configFlag}, runFlags()...),
				Action: runAction,
			},
			{
				Name:      "select",
				Usage:     l10n.T("Select the image shown by the camera"),
				ArgsUsage: "<image>",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "embed",
						Usage: l10n.T("Store the image data instead of its path"),
					},
				},
				Action: selectAction,
			},
			{
				Name:   "clear",
				Usage:  l10n.T("Clear the selection so the placeholder is shown"),
				Flags:  []cli.Flag{configFlag},
				Action: clearAction,
			},
			{
				Name:   "status",
				Usage:  l10n.T("Show the current selection"),
				Flags:  []cli.Flag{configFlag},
				Action: statusAction,
			},
		},
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:     "duration",
			Aliases:  []string{"d"},
			Usage:    l10n.T("Stop after this long (0 = until interrupted)"),
			Category: l10n.T("Stream"),
		},
		&cli.IntFlag{
			Name:     "consumers",
			Value:    1,
			Usage:    l10n.T("Number of simulated stream consumers"),
			Category: l10n.T("Stream"),
		},
		&cli.StringFlag{
			Name:     "mode",
			Usage:    l10n.T("Scheduling mode (timer, upstream)"),
			Category: l10n.T("Stream"),
		},
		&cli.Float64Flag{
			Name:     "fps",
			Usage:    l10n.T("Frame rate in timer mode"),
			Category: l10n.T("Stream"),
		},
		&cli.StringFlag{
			Name:     "sink",
			Usage:    l10n.T("Frame output (null, snapshot, mp4)"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    l10n.T("MP4 file or snapshot directory"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "summary",
			Usage:    l10n.T("Output session summary to file (Markdown format)"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "upstream-file",
			Usage:    l10n.T("Replay an MP4 recording as the upstream feed"),
			Category: l10n.T("Upstream"),
		},
		&cli.StringFlag{
			Name:     "upstream-url",
			Usage:    l10n.T("Screencast a web page as the upstream feed"),
			Category: l10n.T("Upstream"),
		},
		&cli.StringFlag{
			Name:     "chrome-path",
			Usage:    l10n.T("Path to Chrome executable"),
			Category: l10n.T("Browser"),
		},
		&cli.BoolFlag{
			Name:     "no-headless",
			Usage:    l10n.T("Run browser in non-headless mode"),
			Category: l10n.T("Browser"),
		},
		&cli.StringFlag{
			Name:     "caption",
			Usage:    l10n.T("Caption drawn over every frame"),
			Category: l10n.T("Caption"),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T("Logging"),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T("Logging"),
		},
	}
}

// loadConfig reads --config when given, otherwise starts from the defaults.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags overlays run flags on the file configuration.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("fps") {
		cfg.FrameRate = c.Float64("fps")
	}
	if c.IsSet("sink") {
		cfg.Sink.Kind = c.String("sink")
	}
	if c.IsSet("output") {
		cfg.Sink.Output = c.String("output")
		cfg.Sink.Dir = c.String("output")
	}
	if c.IsSet("upstream-file") {
		cfg.Mode = "upstream"
		cfg.Upstream.Kind = config.UpstreamMP4
		cfg.Upstream.Path = c.String("upstream-file")
	}
	if c.IsSet("upstream-url") {
		cfg.Mode = "upstream"
		cfg.Upstream.Kind = config.UpstreamBrowser
		cfg.Upstream.URL = c.String("upstream-url")
	}
	if c.IsSet("chrome-path") {
		cfg.Upstream.ChromePath = c.String("chrome-path")
	}
	if c.Bool("no-headless") {
		cfg.Upstream.Headless = false
	}
	if c.IsSet("caption") {
		cfg.Overlay.Enabled = true
		cfg.Overlay.Caption = c.String("caption")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

func newLogger(cfg config.Config, quiet bool) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}
