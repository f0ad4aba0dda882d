package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/genesis-labs/genesis-api/pkg/models/api"
)

type TableConfig struct {
	NameWidth   int
	StatusWidth int
	DetailWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		NameWidth:   32,
		StatusWidth: 12,
		DetailWidth: 24,
	}
}

// Artifact describes a report written to disk.
type Artifact struct {
	Path     string
	Size     int
	Metadata api.ArtifactMetadata
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

func (c *Reporter) Handle(artifact *Artifact) error {
	funcMap := template.FuncMap{
		"formatRow": func(name string, status interface{}, detail string) string {
			return fmt.Sprintf("| %-*s | %-*v | %-*s |",
				c.config.NameWidth, name,
				c.config.StatusWidth, status,
				c.config.DetailWidth, detail)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+",
				strings.Repeat("-", c.config.NameWidth+2),
				strings.Repeat("-", c.config.StatusWidth+2),
				strings.Repeat("-", c.config.DetailWidth+2))
		},
	}

	tmpl := `
{{.Metadata.ReportType}} ({{.Metadata.Format}}, {{.Size}} bytes)

Request:   {{.Metadata.RequestID}}
Generated: {{.Metadata.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
Written:   {{.Path}}
{{if .Metadata.Partial}}Partial:   some charts were replaced by placeholders
{{end}}
{{separator}}
{{formatRow "Section" "Status" ""}}
{{separator}}
{{range .Metadata.Sections}}{{formatRow .Title .Status ""}}
{{end}}{{separator}}
{{if .Metadata.Tables}}
Pages: {{.Metadata.Pages}}

{{separator}}
{{formatRow "Table" "Page" "Rows"}}
{{separator}}
{{range .Metadata.Tables}}{{formatRow .Table .Page (printf "%d" .Rows)}}
{{end}}{{separator}}
{{end}}`

	t, err := template.New("artifact").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, artifact)
}
