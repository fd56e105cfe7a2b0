package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/kamishibai/pkg/adapters/capturehtml"
	"github.com/user/kamishibai/pkg/adapters/chromebrowser"
	"github.com/user/kamishibai/pkg/adapters/filesink"
	"github.com/user/kamishibai/pkg/adapters/filestore"
	"github.com/user/kamishibai/pkg/adapters/ggrenderer"
	"github.com/user/kamishibai/pkg/adapters/hostclock"
	"github.com/user/kamishibai/pkg/adapters/mp4capture"
	"github.com/user/kamishibai/pkg/adapters/mp4sink"
	"github.com/user/kamishibai/pkg/adapters/nullsink"
	"github.com/user/kamishibai/pkg/adapters/osfilesystem"
	"github.com/user/kamishibai/pkg/config"
	"github.com/user/kamishibai/pkg/device"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/selection"
	"github.com/user/kamishibai/pkg/stages/overlay"
	"github.com/user/kamishibai/pkg/summarizer"
)

// output is the configured sink plus whatever must be closed after it.
type output struct {
	sink   ports.StreamSink
	path   string
	closer io.Closer
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Errorf("invalid configuration: %w", err), 1)
	}
	log := newLogger(cfg, c.Bool("quiet"))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fs := osfilesystem.New()
	renderer := ggrenderer.New()

	out, err := openOutput(cfg, fs, renderer)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if out.closer != nil {
		defer out.closer.Close()
	}

	deps := device.Dependencies{
		Sink:     out.sink,
		Renderer: renderer,
		Clock:    hostclock.New(),
		Logger:   log,
	}
	if device.Mode(cfg.Mode) == device.ModeUpstream {
		deps.Capture = openUpstream(cfg, fs, renderer, log)
		log.Info("Upstream source: %s", upstreamSource(cfg))
	}
	if cfg.Overlay.Enabled {
		stage := overlay.NewStage(capturehtml.New(cfg.Upstream.ChromePath), renderer, log)
		res, err := stage.Execute(ctx, pipeline.OverlayInput{
			Width:   cfg.Width,
			Height:  cfg.Height,
			Caption: cfg.Overlay.Caption,
			Credit:  cfg.Overlay.Credit,
			Theme:   cfg.OverlayTheme(),
		})
		if err != nil {
			log.Warn("Caption overlay disabled: %v", err)
		} else {
			deps.Overlay = res.Image
		}
	}

	dev, err := device.New(cfg.ToDeviceConfig(), deps)
	if err != nil {
		out.sink.Close()
		return cli.Exit(err, 1)
	}

	watcher := selection.NewWatcher(selection.WatcherConfig{
		Store:        filestore.New(cfg.SelectionFile, fs),
		Renderer:     renderer,
		FileSystem:   fs,
		Slot:         dev.Selection(),
		Logger:       log,
		PollInterval: cfg.PollInterval(),
	})
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.Run(watchCtx)
	}()

	consumers := c.Int("consumers")
	if consumers < 1 {
		consumers = 1
	}
	started := time.Now()
	joined := 0
	for i := 0; i < consumers; i++ {
		if err := dev.StartStream(); err != nil {
			log.Error("Failed to start stream: %v", err)
			break
		}
		joined++
	}

	if joined > 0 {
		log.Info("Streaming to %d consumers", joined)
		wait(ctx, c.Duration("duration"))
	}

	for i := 0; i < joined; i++ {
		dev.StopStream()
	}
	elapsed := time.Since(started)
	stopWatch()
	<-watchDone

	stats := dev.Stats()
	if err := dev.Close(); err != nil {
		log.Error("Failed to close device: %v", err)
	}
	if out.path != "" {
		log.Info("Output saved to %s", out.path)
	}

	if path := c.String("summary"); path != "" {
		s := summarizer.NewBuilder().
			WithDevice(summarizer.DeviceInfo{
				Name:   dev.Name(),
				Format: cfg.VideoFormat().String(),
				Mode:   cfg.Mode,
				Source: upstreamSource(cfg),
			}).
			WithDuration(elapsed).
			WithConsumers(joined).
			WithStats(stats).
			WithOutput(outputInfo(cfg, out)).
			Build()
		w := summarizer.NewWriter(summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(l10n.T),
			summarizer.WithVersion(version),
		), fs)
		if err := w.Write(path, s); err != nil {
			log.Error("Failed to write summary: %v", err)
		} else {
			log.Info("Summary saved to %s", path)
		}
	}

	if joined == 0 {
		return cli.Exit(l10n.T("stream could not be started"), 1)
	}
	return nil
}

// wait blocks until ctx ends or d elapses. d <= 0 waits for ctx only.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func openOutput(cfg config.Config, fs ports.FileSystem, renderer ports.Renderer) (output, error) {
	switch cfg.Sink.Kind {
	case config.SinkSnapshot:
		if err := fs.MkdirAll(cfg.Sink.Dir); err != nil {
			return output{}, fmt.Errorf("create snapshot directory: %w", err)
		}
		return output{
			sink: filesink.New(cfg.Sink.Dir, cfg.Sink.EveryNth, fs, renderer, filesink.WithWidth(cfg.Sink.Width)),
			path: cfg.Sink.Dir,
		}, nil
	case config.SinkMP4:
		f, err := os.Create(cfg.Sink.Output)
		if err != nil {
			return output{}, fmt.Errorf("create output: %w", err)
		}
		return output{
			sink: mp4sink.New(f, renderer, mp4sink.Config{
				Quality:       config.QualityPreset(cfg.Sink.Quality).JPEGQuality(),
				FrameDuration: cfg.VideoFormat().FrameDuration,
			}),
			path:   cfg.Sink.Output,
			closer: f,
		}, nil
	default:
		return output{sink: nullsink.New()}, nil
	}
}

func openUpstream(cfg config.Config, fs ports.FileSystem, renderer ports.Renderer, log ports.Logger) ports.UpstreamCapture {
	if cfg.Upstream.Kind == config.UpstreamBrowser {
		return chromebrowser.New(chromebrowser.CaptureOptions{
			LaunchOptions: chromebrowser.LaunchOptions{
				ChromePath: cfg.Upstream.ChromePath,
				Headless:   cfg.Upstream.Headless,
			},
			URL:     cfg.Upstream.URL,
			Width:   cfg.Width,
			Height:  cfg.Height,
			Quality: cfg.Upstream.Quality,
			Buffer:  cfg.Upstream.Buffer,
		}, renderer, log)
	}
	return mp4capture.New(mp4capture.Config{
		Path:   cfg.Upstream.Path,
		Loop:   cfg.Upstream.Loop,
		Buffer: cfg.Upstream.Buffer,
		Speed:  cfg.Upstream.Speed,
	}, fs, renderer, log)
}

func upstreamSource(cfg config.Config) string {
	if device.Mode(cfg.Mode) != device.ModeUpstream {
		return ""
	}
	if cfg.Upstream.Kind == config.UpstreamBrowser {
		return cfg.Upstream.URL
	}
	return cfg.Upstream.Path
}

func outputInfo(cfg config.Config, out output) summarizer.OutputInfo {
	info := summarizer.OutputInfo{Sink: cfg.Sink.Kind, Path: out.path}
	if cfg.Sink.Kind == config.SinkMP4 {
		if st, err := os.Stat(out.path); err == nil {
			info.FileSize = st.Size()
		}
	}
	return info
}
