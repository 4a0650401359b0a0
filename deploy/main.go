package deploy

import (
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tripdata/tdk"
)

// Main holds the options of the deploy command.
type Main struct {
	Name        string `help:"Deployment name."`
	Flow        string `help:"Flow the deployment runs: web-to-bucket or bucket-to-warehouse."`
	Block       string `help:"Config block describing the container, e.g. etl-test-container."`
	Image       string `help:"Container image. Overrides the block."`
	Network     string `help:"Container network. Overrides the block."`
	Cron        string `help:"Five field cron schedule. Empty means run on demand."`
	Out         string `help:"File to write the descriptor to. Empty means stdout."`
	Color       string `help:"Taxi color passed to the flow."`
	Year        int    `help:"Year passed to the flow."`
	Months      string `help:"Comma separated months passed to the flow."`
	BucketBlock string `help:"Bucket config block passed to the flow."`

	Config *viper.Viper `flag:"-"`
	Stdout io.Writer    `flag:"-"`
}

// NewMain returns a Main which describes the multi-month flow.
func NewMain() *Main {
	return &Main{
		Name:   "docker-etl-flow",
		Flow:   "web-to-bucket",
		Color:  "yellow",
		Year:   2022,
		Months: "1,2",
		Stdout: os.Stdout,
	}
}

// Flows are the commands a deployment can schedule. Both take a color, a year
// and months.
var Flows = []string{"web-to-bucket", "bucket-to-warehouse"}

// Run writes the deployment descriptor.
func (m *Main) Run() error {
	if !knownFlow(m.Flow) {
		return &tdk.ConfigurationError{Key: "flow", Err: errors.Errorf("unknown flow %q, expected one of %v", m.Flow, Flows)}
	}
	var infra DockerContainer
	if m.Block != "" {
		if m.Config == nil {
			return &tdk.ConfigurationError{Key: tdk.BlockKey(m.Block), Err: tdk.ErrMissingParam}
		}
		if err := tdk.LoadBlock(m.Config, m.Block, &infra); err != nil {
			return err
		}
	}
	if m.Image != "" {
		infra.Image = m.Image
	}
	if m.Network != "" {
		infra.Network = m.Network
	}
	params := map[string]string{
		"color":  m.Color,
		"year":   strconv.Itoa(m.Year),
		"months": m.Months,
	}
	if m.BucketBlock != "" {
		params["bucket_block"] = m.BucketBlock
	}
	d, err := Build(m.Name, m.Flow, params, infra, m.Cron)
	if err != nil {
		return err
	}
	if m.Out == "" {
		return d.Write(m.Stdout)
	}
	return d.WriteFile(m.Out)
}

func knownFlow(flow string) bool {
	for _, f := range Flows {
		if f == flow {
			return true
		}
	}
	return false
}
