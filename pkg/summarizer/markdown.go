package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownFormatter renders a Summary as a Markdown document.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate labels.
func WithTranslator(t func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = t
	}
}

// WithVersion adds the program version to the footer.
func WithVersion(v string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// NewMarkdownFormatter creates a formatter with untranslated labels.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Stream Summary"))

	fmt.Fprintf(&b, "## %s\n\n", t("Device"))
	f.table(&b, [][2]string{
		{t("Device Name"), s.Device.Name},
		{t("Format"), s.Device.Format},
		{t("Mode"), s.Device.Mode},
		{t("Upstream Source"), orNA(s.Device.Source, t)},
	})

	fmt.Fprintf(&b, "## %s\n\n", t("Session"))
	f.table(&b, [][2]string{
		{t("Duration"), formatDuration(s.Session.DurationMs)},
		{t("Consumers"), fmt.Sprintf("%d", s.Session.Consumers)},
		{t("Producer Constructions"), fmt.Sprintf("%d", s.Session.Constructions)},
		{t("Producer Teardowns"), fmt.Sprintf("%d", s.Session.Teardowns)},
	})

	fmt.Fprintf(&b, "## %s\n\n", t("Frames"))
	rows := [][2]string{
		{t("Ticks"), fmt.Sprintf("%d", s.Frames.Ticks)},
		{t("Frames Emitted"), fmt.Sprintf("%d", s.Frames.Emitted)},
		{t("Frames Dropped"), fmt.Sprintf("%d", s.Frames.Dropped)},
		{t("Discontinuities"), fmt.Sprintf("%d", s.Frames.Discontinuities)},
		{t("Placeholder Frames"), fmt.Sprintf("%d", s.Frames.Fallbacks)},
		{t("Pool Capacity"), fmt.Sprintf("%d", s.Frames.PoolCapacity)},
	}
	if fps := effectiveFPS(s); fps > 0 {
		rows = append(rows, [2]string{t("Effective Frame Rate"), fmt.Sprintf("%.2f fps", fps)})
	}
	if s.Frames.Failures > 0 {
		rows = append(rows, [2]string{t("Failures"), fmt.Sprintf("%d", s.Frames.Failures)})
	}
	if s.Frames.SinkErrors > 0 {
		rows = append(rows, [2]string{t("Sink Errors"), fmt.Sprintf("%d", s.Frames.SinkErrors)})
	}
	f.table(&b, rows)

	fmt.Fprintf(&b, "## %s\n\n", t("Output"))
	out := [][2]string{
		{t("Sink"), s.Output.Sink},
		{t("Path"), orNA(s.Output.Path, t)},
	}
	if s.Output.FileSize > 0 {
		out = append(out, [2]string{t("File Size"), formatBytes(s.Output.FileSize)})
	}
	f.table(&b, out)

	footer := fmt.Sprintf("%s %s", t("Generated at"), s.GeneratedAt.Format(time.RFC3339))
	if f.version != "" {
		footer += fmt.Sprintf(" (kamishibai %s)", f.version)
	}
	fmt.Fprintf(&b, "---\n\n%s\n", footer)
	return b.String()
}

func (f *MarkdownFormatter) table(b *strings.Builder, rows [][2]string) {
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", f.translate("Item"), f.translate("Value"))
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", r[0], r[1])
	}
	b.WriteString("\n")
}

func effectiveFPS(s *Summary) float64 {
	if s.Session.DurationMs <= 0 {
		return 0
	}
	return float64(s.Frames.Emitted) * 1000 / float64(s.Session.DurationMs)
}

func orNA(v string, t func(string) string) string {
	if v == "" {
		return t("N/A")
	}
	return v
}

func formatDuration(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%.2f sec.", float64(ms)/1000)
}

// formatBytes formats bytes in a human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
