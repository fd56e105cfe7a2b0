// Package summarizer turns the counters of a streaming session into a report.
package summarizer

// Formatter renders a Summary, e.g. as Markdown for --summary.
type Formatter interface {
	Format(summary *Summary) string
}

// FormatFunc lets a plain function act as a Formatter.
type FormatFunc func(summary *Summary) string

// Format calls f.
func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}
