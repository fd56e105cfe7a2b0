package chromebrowser

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/user/kamishibai/pkg/adapters/ggrenderer"
	"github.com/user/kamishibai/pkg/mocks"
)

func TestResolveChromePath_Explicit(t *testing.T) {
	t.Setenv("CHROME_PATH", "/from/env")
	if got := ResolveChromePath("/explicit/chrome"); got != "/explicit/chrome" {
		t.Errorf("expected explicit path, got %q", got)
	}
}

func TestResolveChromePath_Env(t *testing.T) {
	t.Setenv("CHROME_PATH", "/from/env")
	if got := ResolveChromePath(""); got != "/from/env" {
		t.Errorf("expected env path, got %q", got)
	}
}

func TestSystemCandidates(t *testing.T) {
	env := map[string]string{"PROGRAMFILES": `C:\Program Files`}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		goos  string
		first string
		count int
	}{
		{"darwin", "/Applications/Chromium.app/Contents/MacOS/Chromium", 2},
		{"linux", "chromium", 4},
		{"windows", `C:\Program Files\Chromium\Application\chrome.exe`, 2},
		{"plan9", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			got := systemCandidates(tt.goos, getenv)
			if len(got) != tt.count {
				t.Fatalf("expected %d candidates, got %d: %v", tt.count, len(got), got)
			}
			if tt.count > 0 && got[0] != tt.first {
				t.Errorf("expected Chromium first, got %q", got[0])
			}
		})
	}
}

func TestResolveExecutable_MissingAbsolute(t *testing.T) {
	if got := resolveExecutable("/nonexistent/kamishibai/chrome"); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestAllocatorOptions_Headless(t *testing.T) {
	base := allocatorOptions(LaunchOptions{}, "/bin/chrome")
	headless := allocatorOptions(LaunchOptions{Headless: true, WindowWidth: 640, WindowHeight: 360}, "/bin/chrome")
	if len(headless) != len(base)+2 {
		t.Errorf("expected headless and window flags to be added, got %d vs %d", len(headless), len(base))
	}
}

func TestNewAllocator_NotFound(t *testing.T) {
	if ResolveChromePath("") != "" {
		t.Skip("Chrome is installed")
	}
	_, _, err := NewAllocator(context.Background(), LaunchOptions{})
	if !errors.Is(err, ErrChromeNotFound) {
		t.Errorf("expected ErrChromeNotFound, got %v", err)
	}
}

func TestCapture_Screencast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser screencast in short mode")
	}
	if ResolveChromePath("") == "" {
		t.Skip("Chrome not found")
	}

	html := `<html><body style="background:#0a0"><h1 id="t">0</h1>
<script>let n=0;setInterval(()=>{document.getElementById('t').textContent=++n},30)</script></body></html>`
	path := t.TempDir() + "/page.html"
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		t.Fatal(err)
	}

	c := New(CaptureOptions{
		LaunchOptions: LaunchOptions{Headless: true},
		URL:           "file://" + path,
		Width:         320,
		Height:        240,
	}, ggrenderer.New(), mocks.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	events, err := c.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Image == nil {
			t.Error("expected a decoded frame")
		} else if ev.Image.Bounds().Dx() == 0 {
			t.Error("expected non-empty frame")
		}
	case <-ctx.Done():
		t.Fatal("no screencast frame received")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	for range events {
	}
}
