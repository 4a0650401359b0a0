package tdk

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Required parameter keys for each kind of destination.
var (
	RelationalKeys    = []string{"user", "password", "host", "port", "db", "table_name"}
	ObjectStorageKeys = []string{"bucket"}
	WarehouseKeys     = []string{"project_id", "credentials", "destination_table"}
)

// Params is an immutable set of named configuration values supplied once when
// a pipeline starts.
type Params struct {
	m map[string]string
}

// NewParams copies m into a new Params. Empty values are treated as absent.
func NewParams(m map[string]string) Params {
	c := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			c[k] = v
		}
	}
	return Params{m: c}
}

// Lookup returns the value for key and whether it was set.
func (p Params) Lookup(key string) (string, bool) {
	v, ok := p.m[key]
	return v, ok
}

// String returns the value for key, or "".
func (p Params) String(key string) string {
	return p.m[key]
}

// Int returns the value for key parsed as an integer. A missing or
// non-numeric value yields a ConfigurationError.
func (p Params) Int(key string) (int, error) {
	v, ok := p.m[key]
	if !ok {
		return 0, &ConfigurationError{Key: key, Err: ErrMissingParam}
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, &ConfigurationError{Key: key, Err: errors.Errorf("%q is not an integer", v)}
	}
	return i, nil
}

// Require checks that every key has a value. The error names the first
// missing key in the order given.
func (p Params) Require(keys ...string) error {
	for _, k := range keys {
		if _, ok := p.m[k]; !ok {
			return &ConfigurationError{Key: k, Err: ErrMissingParam}
		}
	}
	return nil
}

// With returns a copy of p with key set to value.
func (p Params) With(key, value string) Params {
	c := make(map[string]string, len(p.m)+1)
	for k, v := range p.m {
		c[k] = v
	}
	return NewParams(c).set(key, value)
}

func (p Params) set(key, value string) Params {
	if value == "" {
		delete(p.m, key)
	} else {
		p.m[key] = value
	}
	return p
}

// Keys returns the set keys in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParamSource produces the Params for a run.
type ParamSource interface {
	Params(ctx context.Context) (Params, error)
}

// MapSource is a ParamSource backed by literal values.
type MapSource map[string]string

// Params implements ParamSource.
func (m MapSource) Params(ctx context.Context) (Params, error) {
	return NewParams(m), nil
}

// ViperSource reads Keys from a viper instance, which has typically been bound
// to command line flags, the environment, and a config file. Dashes in flag
// names are read as underscores in keys, so the "table-name" flag satisfies the
// "table_name" key.
type ViperSource struct {
	V    *viper.Viper
	Keys []string
	// Block, if set, names a config block whose values are used for keys
	// which have no value of their own.
	Block string
}

// Params implements ParamSource.
func (s ViperSource) Params(ctx context.Context) (Params, error) {
	if s.V == nil {
		return Params{}, &ConfigurationError{Key: "config", Err: errors.New("no configuration source")}
	}
	m := make(map[string]string, len(s.Keys))
	var block map[string]interface{}
	if s.Block != "" {
		block = s.V.GetStringMap(BlockKey(s.Block))
		if len(block) == 0 {
			return Params{}, &ConfigurationError{Key: BlockKey(s.Block), Err: errors.New("block not found")}
		}
	}
	for _, k := range s.Keys {
		v := s.V.GetString(k)
		if v == "" {
			v = s.V.GetString(strings.Replace(k, "_", "-", -1))
		}
		if v == "" && block != nil {
			if bv, ok := block[k]; ok {
				v = toString(bv)
			}
		}
		m[k] = v
	}
	return NewParams(m), nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return ""
}

// BlockKey returns the viper key of a named config block.
func BlockKey(name string) string {
	return "blocks." + name
}

// LoadBlock decodes the named config block into out, which should be a
// pointer to a struct with mapstructure tags.
func LoadBlock(v *viper.Viper, name string, out interface{}) error {
	key := BlockKey(name)
	if !v.IsSet(key) {
		return &ConfigurationError{Key: key, Err: errors.New("block not found")}
	}
	if err := v.UnmarshalKey(key, out); err != nil {
		return &ConfigurationError{Key: key, Err: errors.Wrap(err, "decoding block")}
	}
	return nil
}
