package port

import (
	"io"
	"sort"

	"github.com/arturoeanton/repolens/internal/domain"
)

// ReportRenderer turns an artifact into one export format (Strategy Pattern).
type ReportRenderer interface {
	// Format is the name used in ?type= (e.g. "markdown", "json", "html").
	Format() string

	// ContentType is the MIME type of the rendered output.
	ContentType() string

	// Extension is the file extension used for downloads, including the dot.
	Extension() string

	// Render writes the artifact to w.
	Render(w io.Writer, a *domain.Artifact) error
}

// ReportEngine holds the renderers keyed by format.
type ReportEngine struct {
	renderers map[string]ReportRenderer
}

// NewReportEngine creates a new engine with the given renderers.
func NewReportEngine(renderers ...ReportRenderer) *ReportEngine {
	m := make(map[string]ReportRenderer, len(renderers))
	for _, r := range renderers {
		m[r.Format()] = r
	}
	return &ReportEngine{renderers: m}
}

// Renderer returns the renderer registered for format.
func (e *ReportEngine) Renderer(format string) (ReportRenderer, error) {
	r, ok := e.renderers[format]
	if !ok {
		return nil, ErrRendererNotFound
	}
	return r, nil
}

// Render writes the artifact in the named format.
func (e *ReportEngine) Render(w io.Writer, format string, a *domain.Artifact) error {
	r, err := e.Renderer(format)
	if err != nil {
		return err
	}
	return r.Render(w, a)
}

// Formats returns the registered format names, sorted.
func (e *ReportEngine) Formats() []string {
	names := make([]string, 0, len(e.renderers))
	for name := range e.renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
