// Package overlay renders the caption layer blended over every frame.
package overlay

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
)

// Stage renders a caption band through a browser, falling back to a plain
// canvas drawing when the browser is unavailable.
type Stage struct {
	capturer ports.HTMLCapturer
	renderer ports.Renderer
	logger   ports.Logger
	now      func() time.Time
}

// NewStage creates a new overlay stage. capturer may be nil.
func NewStage(capturer ports.HTMLCapturer, renderer ports.Renderer, logger ports.Logger) *Stage {
	return &Stage{
		capturer: capturer,
		renderer: renderer,
		logger:   logger.WithComponent("overlay"),
		now:      time.Now,
	}
}

// Ensure Stage implements pipeline.Stage
var _ pipeline.Stage[pipeline.OverlayInput, pipeline.OverlayResult] = (*Stage)(nil)

// Execute produces a frame-sized overlay, transparent outside the caption band.
func (s *Stage) Execute(ctx context.Context, input pipeline.OverlayInput) (pipeline.OverlayResult, error) {
	result := pipeline.OverlayResult{}
	if input.Width <= 0 || input.Height <= 0 {
		return result, fmt.Errorf("invalid overlay size %dx%d", input.Width, input.Height)
	}

	s.logger.Debug("Generating caption overlay")
	vars := NewTemplateVars(input, s.now())

	if s.capturer != nil {
		html, err := RenderHTML(vars)
		if err != nil {
			return result, fmt.Errorf("render HTML: %w", err)
		}
		img, err := s.capturer.CaptureHTMLWithViewport(ctx, html, input.Width, input.Height, true)
		if err == nil {
			result.Image = img
			s.logger.Debug("Caption overlay generated: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
			return result, nil
		}
		s.logger.Warn("Browser caption failed, drawing plain caption: %v", err)
	}

	result.Image = s.drawPlain(vars, input.Theme)
	return result, nil
}

// drawPlain draws the caption band with the renderer's canvas.
func (s *Stage) drawPlain(vars TemplateVars, theme pipeline.OverlayTheme) image.Image {
	canvas := s.renderer.CreateCanvas(vars.Width, vars.Height, color.Transparent)
	top := vars.Height - vars.BandHeight
	canvas.DrawRect(0, top, vars.Width, vars.BandHeight, theme.BackgroundColor)
	if theme.AccentColor != nil {
		canvas.DrawRect(0, top, vars.Width, 3, theme.AccentColor)
	}

	fontSize := float64(vars.FontSize)
	baseline := top + vars.BandHeight/2 + vars.FontSize/3
	if vars.Caption != "" {
		canvas.DrawText(vars.Caption, vars.FontSize, baseline, ports.TextStyle{
			FontSize: fontSize,
			Color:    theme.TextColor,
			Align:    ports.AlignLeft,
		})
	}
	canvas.DrawText(vars.Credit, vars.Width-vars.FontSize, baseline, ports.TextStyle{
		FontSize: fontSize / 2,
		Color:    theme.AccentColor,
		Align:    ports.AlignRight,
	})
	return canvas.ToImage()
}
