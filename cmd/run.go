package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripdata/tdk/usecase/ingest"
)

// RunMain is wrapped by NewRunCommand and only exported for testing purposes.
var RunMain *ingest.Main

// NewRunCommand returns a new cobra command wrapping RunMain.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	RunMain = ingest.NewMain()
	runCommand := &cobra.Command{
		Use:   "run",
		Short: "run - load one trip record file into a database table",
		Long: `Downloads the parquet or CSV file at --url, fills in missing values
as given by --fill, and writes it to --table with postgres (pgx) or
sqlite3. Connection settings may come from flags or from a config
block named by --block, e.g.

    tdk run --config tdk.toml --block postgres-connector \
        --url https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_2022-01.parquet \
        --table yellow_taxi_data --fill passenger_count=0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			RunMain.Config = configFrom(cmd)
			err = RunMain.Run(cmd.Context())
			if err != nil {
				return err
			}
			done(stderr, start)
			return nil
		},
	}
	flags := runCommand.Flags()
	err = addFlags(flags, RunMain, &RunMain.Common)
	if err != nil {
		panic(err)
	}
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}
