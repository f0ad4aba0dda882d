package terminal

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/genesis-labs/genesis-api/pkg/models/api"
)

// Reporter prints the report catalogue to the console.
type Reporter struct {
	writer io.Writer
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{writer: writer}
}

func (c *Reporter) Handle(types []api.ReportType) error {
	tmpl := `{{range .}}
{{.Type}}: {{.Title}}
{{- if .Description}}
  {{.Description}}
{{- end}}
  Filters:{{range .Filters}} {{.Name}} ({{.Type}}{{if .Required}}, required{{end}}{{if .Multi}}, multi{{end}}){{else}} none{{end}}
  Charts:{{range .Charts}} {{.ID}} [{{.Kind}}]{{end}}
  Sections:{{range $i, $s := .Sections}}{{if $i}},{{end}} {{$s}}{{end}}
{{end}}`
	t, err := template.New("catalogue").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, types)
}
