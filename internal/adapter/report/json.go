package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

// JSONRenderer exports the artifact as indented JSON.
type JSONRenderer struct{}

var _ port.ReportRenderer = JSONRenderer{}

func (JSONRenderer) Format() string      { return "json" }
func (JSONRenderer) ContentType() string { return "application/json" }
func (JSONRenderer) Extension() string   { return ".json" }

func (JSONRenderer) Render(w io.Writer, a *domain.Artifact) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	return nil
}

// NewEngine returns a report engine with every built-in format registered.
func NewEngine() *port.ReportEngine {
	return port.NewReportEngine(MarkdownRenderer{}, JSONRenderer{}, HTMLRenderer{})
}
