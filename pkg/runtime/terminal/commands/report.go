package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genesis-labs/genesis-api/pkg/adapters"
	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/runtime/bootstrap"
	"github.com/genesis-labs/genesis-api/pkg/runtime/terminal/export"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Opener assembles the services a command needs.
type Opener func(ctx context.Context, opts bootstrap.Options) (*bootstrap.App, error)

type ReportCmd struct {
	reportType string
	from       string
	to         string
	format     string
	timezone   string
	filters    []string
	output     string
	open       Opener
	reporter   *export.Reporter
}

func NewReportCmd(open Opener, reporter *export.Reporter) *cobra.Command {
	rc := &ReportCmd{open: open, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report and write it to a file",
		RunE:  rc.run,
	}

	cmd.Flags().StringVar(&rc.reportType, "type", "", "Report type (see `genesis reports`)")
	cmd.Flags().StringVar(&rc.from, "from", "", "First day (2006-01-02) or RFC 3339 start")
	cmd.Flags().StringVar(&rc.to, "to", "", "Last day (2006-01-02, inclusive) or RFC 3339 end")
	cmd.Flags().StringVar(&rc.format, "format", "html", "Output format: html or pdf")
	cmd.Flags().StringVar(&rc.timezone, "tz", "", "IANA timezone of the range and buckets")
	cmd.Flags().StringArrayVar(&rc.filters, "filter", nil, "Filter as name=value[,value]; repeatable")
	cmd.Flags().StringVarP(&rc.output, "out", "o", "", "Output file or directory (default: current directory)")

	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func (rc *ReportCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	payload := api.ReportRequest{
		Type:     rc.reportType,
		From:     rc.from,
		To:       rc.to,
		Format:   rc.format,
		Timezone: rc.timezone,
	}
	for _, f := range rc.filters {
		name, value, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return fmt.Errorf("filter %q is not name=value", f)
		}
		if payload.Filters == nil {
			payload.Filters = map[string][]string{}
		}
		payload.Filters[name] = append(payload.Filters[name], value)
	}

	app, err := rc.open(ctx, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	req, err := adapters.MapAPIReportRequestToDomain(payload, app.Location)
	if err != nil {
		return err
	}
	artifact, err := app.Reports.Generate(ctx, req)
	if err != nil {
		return err
	}

	path, err := outputPath(rc.output, artifact.Filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, artifact.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("path", path).Int("bytes", len(artifact.Content)).Msg("report written")

	return rc.reporter.Handle(&export.Artifact{
		Path:     path,
		Size:     len(artifact.Content),
		Metadata: adapters.MapDomainArtifactMetadataToAPI(artifact.Metadata),
	})
}

// outputPath joins filename onto out when out is empty or a directory.
func outputPath(out, filename string) (string, error) {
	if out == "" {
		return filename, nil
	}
	info, err := os.Stat(out)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(out, filename), nil
	case err == nil || os.IsNotExist(err):
		return out, nil
	default:
		return "", fmt.Errorf("failed to inspect %s: %w", out, err)
	}
}
