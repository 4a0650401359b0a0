package tdk_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tripdata/tdk"
	"github.com/tripdata/tdk/test"
)

func TestParamsInt(t *testing.T) {
	p := tdk.NewParams(map[string]string{"port": "5432", "bad": "five four three two"})
	port, err := p.Int("port")
	test.ErrNil(t, err, "Int")
	test.MustBe(t, 5432, port)

	var ce *tdk.ConfigurationError
	if _, err := p.Int("bad"); !errors.As(err, &ce) || ce.Key != "bad" {
		t.Fatalf("expected ConfigurationError for bad, got %v", err)
	}
	if _, err := p.Int("missing"); !errors.Is(err, tdk.ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
}

func TestParamsImmutable(t *testing.T) {
	m := map[string]string{"user": "root", "empty": ""}
	p := tdk.NewParams(m)
	m["user"] = "admin"
	test.MustBe(t, "root", p.String("user"))
	if _, ok := p.Lookup("empty"); ok {
		t.Fatal("empty values should be absent")
	}
	q := p.With("host", "localhost")
	if _, ok := p.Lookup("host"); ok {
		t.Fatal("With modified the original")
	}
	test.MustBe(t, []string{"host", "user"}, q.Keys())
}

const blockConfig = `
table_name = "yellow_taxi_data"

[blocks.postgres-connector]
user = "root"
password = "root"
host = "localhost"
port = 5432
db = "ny_taxi"
`

func TestViperSourceBlock(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	test.ErrNil(t, v.ReadConfig(strings.NewReader(blockConfig)), "ReadConfig")
	v.Set("host", "pg.internal")

	src := tdk.ViperSource{V: v, Keys: tdk.RelationalKeys, Block: "postgres-connector"}
	p, err := src.Params(context.Background())
	test.ErrNil(t, err, "Params")
	test.ErrNil(t, p.Require(tdk.RelationalKeys...), "Require")
	test.MustBe(t, "pg.internal", p.String("host"), "explicit value wins over block")
	test.MustBe(t, "5432", p.String("port"))
	test.MustBe(t, "yellow_taxi_data", p.String("table_name"))

	var blk struct {
		User string `mapstructure:"user"`
		Port int    `mapstructure:"port"`
	}
	test.ErrNil(t, tdk.LoadBlock(v, "postgres-connector", &blk), "LoadBlock")
	test.MustBe(t, "root", blk.User)
	test.MustBe(t, 5432, blk.Port)

	if err := tdk.LoadBlock(v, "dte-bucket-block", &blk); tdk.ExitCode(err) != tdk.ExitConfiguration {
		t.Fatalf("expected configuration error for missing block, got %v", err)
	}
	_, err = tdk.ViperSource{V: v, Keys: tdk.RelationalKeys, Block: "nope"}.Params(context.Background())
	if tdk.ExitCode(err) != tdk.ExitConfiguration {
		t.Fatalf("expected configuration error for missing block, got %v", err)
	}
}

func TestViperSourceDashedKeys(t *testing.T) {
	v := viper.New()
	v.Set("table-name", "green_taxi_data")
	p, err := tdk.ViperSource{V: v, Keys: []string{"table_name"}}.Params(context.Background())
	test.ErrNil(t, err, "Params")
	test.MustBe(t, "green_taxi_data", p.String("table_name"))
}
