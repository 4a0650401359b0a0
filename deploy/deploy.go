// Package deploy builds the deployment descriptor which lets a scheduler run
// a tdk flow in a docker container.
package deploy

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tripdata/tdk"
)

// DockerContainer describes the container a flow runs in. It is decoded from
// an infrastructure config block.
type DockerContainer struct {
	Type            string            `yaml:"type" mapstructure:"-"`
	Image           string            `yaml:"image" mapstructure:"image"`
	ImagePullPolicy string            `yaml:"image_pull_policy,omitempty" mapstructure:"image_pull_policy"`
	Network         string            `yaml:"network,omitempty" mapstructure:"network"`
	AutoRemove      bool              `yaml:"auto_remove" mapstructure:"auto_remove"`
	Env             map[string]string `yaml:"env,omitempty" mapstructure:"env"`
}

// Schedule runs a deployment periodically.
type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone,omitempty"`
}

// Deployment is a named, parameterized invocation of a flow.
type Deployment struct {
	Name           string            `yaml:"name"`
	Flow           string            `yaml:"flow"`
	Parameters     map[string]string `yaml:"parameters"`
	Command        []string          `yaml:"command"`
	Schedule       *Schedule         `yaml:"schedule,omitempty"`
	Infrastructure DockerContainer   `yaml:"infrastructure"`
}

// Build returns a Deployment running flow with params in infra. An empty
// cron means the deployment only runs when triggered.
func Build(name, flow string, params map[string]string, infra DockerContainer, cron string) (*Deployment, error) {
	if name == "" {
		return nil, &tdk.ConfigurationError{Key: "name", Err: tdk.ErrMissingParam}
	}
	if flow == "" {
		return nil, &tdk.ConfigurationError{Key: "flow", Err: tdk.ErrMissingParam}
	}
	if infra.Image == "" {
		return nil, &tdk.ConfigurationError{Key: "image", Err: tdk.ErrMissingParam}
	}
	infra.Type = "docker-container"
	d := &Deployment{
		Name:           name,
		Flow:           flow,
		Parameters:     params,
		Command:        command(flow, params),
		Infrastructure: infra,
	}
	if cron != "" {
		if n := len(strings.Fields(cron)); n != 5 {
			return nil, &tdk.ConfigurationError{Key: "cron", Err: errors.Errorf("%q has %d fields, expected 5", cron, n)}
		}
		d.Schedule = &Schedule{Cron: cron, Timezone: "UTC"}
	}
	return d, nil
}

// command is the container command line, with flags in sorted order.
func command(flow string, params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cmd := []string{"tdk", flow}
	for _, k := range keys {
		cmd = append(cmd, "--"+strings.Replace(k, "_", "-", -1)+"="+params[k])
	}
	return cmd
}

// Write encodes d as YAML.
func (d *Deployment) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return errors.Wrap(err, "encoding deployment")
	}
	return errors.Wrap(enc.Close(), "closing encoder")
}

// WriteFile writes d to path.
func (d *Deployment) WriteFile(path string) error {
	buf := &bytes.Buffer{}
	if err := d.Write(buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating directory")
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0644), "writing %s", path)
}

// Load reads a deployment written by WriteFile.
func Load(path string) (*Deployment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	d := &Deployment{}
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return d, nil
}
