// Package chromebrowser drives a Chrome instance through chromedp and exposes a
// page screencast as an upstream capture feed.
package chromebrowser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
)

// ErrChromeNotFound is returned when no Chrome executable can be located.
var ErrChromeNotFound = errors.New("chrome not found: please install Chrome/Chromium, set CHROME_PATH environment variable, or use --chrome-path option")

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	ChromePath   string
	Headless     bool
	WindowWidth  int
	WindowHeight int
}

// NewAllocator starts an exec allocator for the resolved Chrome binary.
// Cancel the returned function to kill the browser.
func NewAllocator(ctx context.Context, opts LaunchOptions) (context.Context, context.CancelFunc, error) {
	chromePath := ResolveChromePath(opts.ChromePath)
	if chromePath == "" {
		return nil, nil, ErrChromeNotFound
	}
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts, chromePath)...)
	return allocCtx, cancel, nil
}

func allocatorOptions(opts LaunchOptions, chromePath string) []chromedp.ExecAllocatorOption {
	o := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		// A screencast of a hidden tab stalls without these.
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	}
	if opts.Headless {
		o = append(o, chromedp.Flag("headless", "new"))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		o = append(o, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	return o
}

// ResolveChromePath resolves the Chrome executable: explicitPath, then the
// CHROME_PATH environment variable, then platform defaults (Chromium first).
func ResolveChromePath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		return envPath
	}
	for _, candidate := range systemCandidates(runtime.GOOS, os.Getenv) {
		if path := resolveExecutable(candidate); path != "" {
			return path
		}
	}
	return ""
}

func systemCandidates(goos string, getenv func(string) string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case "linux":
		return []string{"chromium", "chromium-browser", "google-chrome-stable", "google-chrome"}
	case "windows":
		var out []string
		for _, env := range []string{"PROGRAMFILES", "PROGRAMFILES(X86)", "LOCALAPPDATA"} {
			root := getenv(env)
			if root == "" {
				continue
			}
			out = append(out,
				root+`\Chromium\Application\chrome.exe`,
				root+`\Google\Chrome\Application\chrome.exe`,
			)
		}
		return out
	}
	return nil
}

// resolveExecutable stats absolute paths and looks bare names up in PATH.
func resolveExecutable(nameOrPath string) string {
	if strings.HasPrefix(nameOrPath, "/") || (len(nameOrPath) > 1 && nameOrPath[1] == ':') {
		if _, err := os.Stat(nameOrPath); err == nil {
			return nameOrPath
		}
		return ""
	}
	if path, err := exec.LookPath(nameOrPath); err == nil {
		return path
	}
	return ""
}

func runError(step string, err error) error {
	return fmt.Errorf("%s: %w", step, err)
}
