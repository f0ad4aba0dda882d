package commands

import (
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/runtime/bootstrap"
	"github.com/genesis-labs/genesis-api/pkg/services/seed"
	"github.com/genesis-labs/genesis-api/pkg/store/sales"
	"github.com/spf13/cobra"
)

type SeedCmd struct {
	start       string
	days        int
	salesPerDay int
	seed        int64
	open        Opener
}

func NewSeedCmd(open Opener) *cobra.Command {
	defaults := seed.DefaultOptions(time.Now())
	sc := &SeedCmd{open: open}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with demo sales and sensor data",
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.start, "start", defaults.Start.Format("2006-01-02"), "First day of generated data")
	cmd.Flags().IntVar(&sc.days, "days", defaults.Days, "Number of days to generate")
	cmd.Flags().IntVar(&sc.salesPerDay, "sales-per-day", defaults.SalesPerDay, "Sales generated per day")
	cmd.Flags().Int64Var(&sc.seed, "seed", defaults.Seed, "Random seed; equal seeds give equal data")

	return cmd
}

func (sc *SeedCmd) run(cmd *cobra.Command, _ []string) error {
	start, err := time.Parse("2006-01-02", sc.start)
	if err != nil {
		return fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", sc.start)
	}

	app, err := sc.open(cmd.Context(), bootstrap.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer app.Close()

	salesStore, err := sales.NewStore(app.DB)
	if err != nil {
		return err
	}
	seeder, err := seed.NewSeeder(salesStore, app.Sensors)
	if err != nil {
		return err
	}

	summary, err := seeder.Run(cmd.Context(), seed.Options{
		Start:       start,
		Days:        sc.days,
		SalesPerDay: sc.salesPerDay,
		Seed:        sc.seed,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d units, %d sensors, %d readings and %d sales\n",
		summary.Units, summary.Sensors, summary.Readings, summary.Sales)
	return err
}
