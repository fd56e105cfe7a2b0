package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/kamishibai/pkg/adapters/filestore"
	"github.com/user/kamishibai/pkg/adapters/ggrenderer"
	"github.com/user/kamishibai/pkg/adapters/logger"
	"github.com/user/kamishibai/pkg/adapters/osfilesystem"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/selection"
)

// newDecoder builds a watcher used only for its Decode method.
func newDecoder(fs ports.FileSystem) *selection.Watcher {
	return selection.NewWatcher(selection.WatcherConfig{
		Renderer:   ggrenderer.New(),
		FileSystem: fs,
		Slot:       selection.NewSlot(),
		Logger:     logger.NewNoop(),
	})
}

func selectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(l10n.T("an image argument is required"), 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	path, err := filepath.Abs(c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}
	fs := osfilesystem.New()

	sel := ports.Selection{UpdatedAt: time.Now().UTC()}
	if c.Bool("embed") {
		data, err := fs.ReadFile(path)
		if err != nil {
			return cli.Exit(err, 1)
		}
		sel.Base64Image = base64.StdEncoding.EncodeToString(data)
	} else {
		sel.ImagePath = "file://" + path
	}

	// Refuse what the camera would replace with the placeholder anyway.
	img, err := newDecoder(fs).Decode(sel)
	if err != nil {
		return cli.Exit(err, 1)
	}

	store := filestore.New(cfg.SelectionFile, fs)
	if err := store.Save(sel); err != nil {
		return cli.Exit(err, 1)
	}
	size := img.Size()
	fmt.Println(l10n.F("Selected %s (%dx%d) in %s", filepath.Base(path), size.Width, size.Height, store.Path()))
	return nil
}

func clearAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	store := filestore.New(cfg.SelectionFile, osfilesystem.New())
	if err := store.Clear(); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(l10n.T("Selection cleared"))
	return nil
}

func statusAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fs := osfilesystem.New()
	store := filestore.New(cfg.SelectionFile, fs)
	sel, err := store.Load()
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Println(l10n.F("Selection file: %s", store.Path()))
	if !sel.UpdatedAt.IsZero() {
		fmt.Println(l10n.F("Updated at: %s", sel.UpdatedAt.Local().Format("2006/01/02 15:04:05")))
	}
	img, err := newDecoder(fs).Decode(sel)
	switch {
	case errors.Is(err, selection.ErrEmpty):
		fmt.Println(l10n.T("No image selected, the placeholder is shown"))
	case err != nil:
		fmt.Println(l10n.F("Selected image is unusable, the placeholder is shown: %v", err))
	default:
		size := img.Size()
		fmt.Println(l10n.F("Selected image: %s (%dx%d)", img.Label, size.Width, size.Height))
	}
	return nil
}
