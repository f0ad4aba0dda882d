package commands

import (
	"github.com/genesis-labs/genesis-api/pkg/adapters"
	"github.com/genesis-labs/genesis-api/pkg/models/api"
	"github.com/genesis-labs/genesis-api/pkg/services/report"
	"github.com/spf13/cobra"
)

type CatalogPrinter interface {
	Handle(types []api.ReportType) error
}

func NewReportsCmd(printer CatalogPrinter) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List the report types and their filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := report.DefaultRegistry().List()
			types := make([]api.ReportType, 0, len(defs))
			for _, def := range defs {
				types = append(types, adapters.MapDefinitionToAPIReportType(def))
			}
			return printer.Handle(types)
		},
	}
}
