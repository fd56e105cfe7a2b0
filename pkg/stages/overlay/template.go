package overlay

import (
	"bytes"
	"fmt"
	"html/template"
	"image/color"
	"time"

	"github.com/user/kamishibai/pkg/pipeline"
)

// DefaultCredit is shown when no credit is configured.
const DefaultCredit = "Kamishibai Camera"

// TemplateVars contains variables for the caption HTML template.
type TemplateVars struct {
	Width      int
	Height     int
	BandHeight int
	FontSize   int
	Caption    string
	Credit     string
	CreatedAt  string
	Background template.CSS
	Text       template.CSS
	Accent     template.CSS
}

// NewTemplateVars creates template variables for a caption band at the bottom of
// a width x height frame.
func NewTemplateVars(input pipeline.OverlayInput, now time.Time) TemplateVars {
	credit := input.Credit
	if credit == "" {
		credit = DefaultCredit
	}
	band := BandHeight(input.Height)
	return TemplateVars{
		Width:      input.Width,
		Height:     input.Height,
		BandHeight: band,
		FontSize:   band * 2 / 5,
		Caption:    input.Caption,
		Credit:     credit,
		CreatedAt:  now.Format("2006/01/02 15:04"),
		Background: cssColor(input.Theme.BackgroundColor),
		Text:       cssColor(input.Theme.TextColor),
		Accent:     cssColor(input.Theme.AccentColor),
	}
}

// BandHeight is the caption band height for a frame of the given height.
func BandHeight(frameHeight int) int {
	h := frameHeight / 10
	if h < 24 {
		h = 24
	}
	return h
}

func cssColor(c color.Color) template.CSS {
	if c == nil {
		return "transparent"
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return template.CSS(fmt.Sprintf("rgba(%d,%d,%d,%.3f)", n.R, n.G, n.B, float64(n.A)/255))
}

// RenderHTML renders the caption HTML template with the given variables.
func RenderHTML(vars TemplateVars) (string, error) {
	tmpl, err := template.New("caption").Parse(captionTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

const captionTemplate = `<html>
  <head>
    <style>
      * {
        margin: 0;
        padding: 0;
        box-sizing: border-box;
        white-space: nowrap;
      }
      html, body {
        width: {{.Width}}px;
        height: {{.Height}}px;
        background: transparent;
        overflow: hidden;
      }
      body {
        font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
        position: relative;
      }
      .band {
        position: absolute;
        left: 0;
        right: 0;
        bottom: 0;
        height: {{.BandHeight}}px;
        padding: 0 {{.FontSize}}px;
        background-color: {{.Background}};
        border-top: 3px solid {{.Accent}};
        display: flex;
        align-items: center;
        justify-content: space-between;
        gap: {{.FontSize}}px;
      }
      .caption {
        font-size: {{.FontSize}}px;
        font-weight: 600;
        color: {{.Text}};
        overflow: hidden;
        text-overflow: ellipsis;
      }
      .meta {
        display: flex;
        flex-direction: column;
        align-items: flex-end;
        font-size: {{.FontSize}}px;
        color: {{.Text}};
        opacity: 0.8;
      }
      .meta .credit {
        font-size: 0.5em;
        color: {{.Accent}};
      }
      .meta .datetime {
        font-size: 0.4em;
      }
    </style>
  </head>
  <body>
    <div class="band">
      <div class="caption">{{.Caption}}</div>
      <div class="meta">
        <div class="credit">{{.Credit}}</div>
        <div class="datetime">{{.CreatedAt}}</div>
      </div>
    </div>
  </body>
</html>`
