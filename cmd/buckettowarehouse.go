package cmd

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripdata/tdk/usecase/buckettowarehouse"
)

// BucketToWarehouseMain is wrapped by NewBucketToWarehouseCommand and only exported for testing purposes.
var BucketToWarehouseMain *buckettowarehouse.Main

// NewBucketToWarehouseCommand returns a new cobra command wrapping BucketToWarehouseMain.
func NewBucketToWarehouseCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	BucketToWarehouseMain = buckettowarehouse.NewMain()
	bucketToWarehouseCommand := &cobra.Command{
		Use:   "bucket-to-warehouse",
		Short: "bucket-to-warehouse - load monthly trip record files from a bucket into BigQuery",
		Long:  `Downloads data/<color>/<color>_tripdata_<year>-<MM>.parquet for each
month from the bucket, fills in missing values (by default
passenger_count=0), and loads the rows into --destination-table in
jobs of --chunk-size rows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			BucketToWarehouseMain.Config = configFrom(cmd)
			err = BucketToWarehouseMain.Run(cmd.Context())
			if err != nil {
				return err
			}
			done(stderr, start)
			return nil
		},
	}
	flags := bucketToWarehouseCommand.Flags()
	err = addFlags(flags, BucketToWarehouseMain, &BucketToWarehouseMain.Common, &BucketToWarehouseMain.Storage)
	if err != nil {
		panic(err)
	}
	return bucketToWarehouseCommand
}

func init() {
	subcommandFns["bucket-to-warehouse"] = NewBucketToWarehouseCommand
}
