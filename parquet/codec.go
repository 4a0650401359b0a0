package parquet

import (
	"os"

	"github.com/pkg/errors"

	"github.com/tripdata/tdk"
)

// DatasetCodec stores Datasets in a cache as gzip compressed parquet.
type DatasetCodec struct {
	// TempDir holds the scratch files used while encoding. Empty means the
	// system default.
	TempDir string
}

var _ tdk.Codec[*tdk.Dataset] = DatasetCodec{}

// Encode implements tdk.Codec.
func (c DatasetCodec) Encode(d *tdk.Dataset) ([]byte, error) {
	path, err := c.scratch()
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	if err := NewWriter().WriteFile(path, d); err != nil {
		return nil, errors.Wrap(err, "encoding dataset")
	}
	b, err := os.ReadFile(path)
	return b, errors.Wrap(err, "reading encoded dataset")
}

// Decode implements tdk.Codec.
func (c DatasetCodec) Decode(b []byte) (*tdk.Dataset, error) {
	path, err := c.scratch()
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return nil, errors.Wrap(err, "writing scratch file")
	}
	d, err := ReadFile(path)
	return d, errors.Wrap(err, "decoding dataset")
}

func (c DatasetCodec) scratch() (string, error) {
	f, err := os.CreateTemp(c.TempDir, "tdk-*.parquet")
	if err != nil {
		return "", errors.Wrap(err, "creating scratch file")
	}
	name := f.Name()
	return name, errors.Wrap(f.Close(), "closing scratch file")
}
