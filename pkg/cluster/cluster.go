// Package cluster loads the cluster config and answers node queries.
package cluster

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/flock/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFilename is used when neither --cluster nor CLUSTER_CONF is set
	DefaultConfigFilename = "cluster.conf"

	// ConfigEnv overrides the default config path
	ConfigEnv = "CLUSTER_CONF"
)

// ErrConfigInvalid is returned when the cluster config is missing or malformed
var ErrConfigInvalid = errors.New("invalid cluster config")

// Config is the on-disk cluster.conf shape
type Config struct {
	KeyFile    string         `yaml:"key_file"`
	WorkerPath string         `yaml:"worker_path"`
	Controller *ControllerDef `yaml:"controller,omitempty"`
	Nodes      []NodeDef      `yaml:"nodes"`
}

// NodeDef is one entry of the nodes list
type NodeDef struct {
	Name     string `yaml:"name"`
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
	KeyFile  string `yaml:"key_file,omitempty"`
}

// ControllerDef describes the control machine
type ControllerDef struct {
	Name     string `yaml:"name"`
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
}

// Directory is the ordered, read-only list of nodes loaded from a config
type Directory struct {
	nodes      []*types.Node
	controller *types.Controller
	workerPath string
}

// ResolvePath picks the config path from the flag value, the environment, or the default
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env
	}
	return DefaultConfigFilename
}

// Load reads and validates a cluster config file
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrConfigInvalid, path, err)
	}
	return Parse(data)
}

// Parse builds a directory from raw YAML
func Parse(data []byte) (*Directory, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return New(&cfg)
}

// New builds a directory from a decoded config
func New(cfg *Config) (*Directory, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes defined", ErrConfigInvalid)
	}

	d := &Directory{
		nodes:      make([]*types.Node, 0, len(cfg.Nodes)),
		workerPath: cfg.WorkerPath,
	}

	for i, def := range cfg.Nodes {
		if def.Name == "" || def.Hostname == "" {
			return nil, fmt.Errorf("%w: node %d requires name and hostname", ErrConfigInvalid, i+1)
		}

		keyFile := def.KeyFile
		if keyFile == "" {
			keyFile = cfg.KeyFile
		}

		d.nodes = append(d.nodes, &types.Node{
			Index:      i + 1,
			Name:       def.Name,
			Hostname:   def.Hostname,
			Username:   def.Username,
			KeyFile:    os.ExpandEnv(keyFile),
			WorkerPath: cfg.WorkerPath,
		})
	}

	if cfg.Controller != nil {
		d.controller = &types.Controller{
			Name:     cfg.Controller.Name,
			Hostname: cfg.Controller.Hostname,
			Username: cfg.Controller.Username,
		}
	}

	return d, nil
}

// Nodes returns every node in stored order
func (d *Directory) Nodes() []*types.Node {
	out := make([]*types.Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// Select returns at most count nodes starting at the 1-based start index.
// A start below 1 is treated as 1 and a count of 0 means all remaining nodes.
func (d *Directory) Select(start, count int) []*types.Node {
	if start < 1 {
		start = 1
	}
	if start > len(d.nodes) {
		return nil
	}

	end := len(d.nodes)
	if count > 0 && start-1+count < end {
		end = start - 1 + count
	}

	out := make([]*types.Node, end-(start-1))
	copy(out, d.nodes[start-1:end])
	return out
}

// Controller returns the control machine, or nil when not configured
func (d *Directory) Controller() *types.Controller {
	return d.controller
}

// WorkerPath returns the remote payload directory shared by all nodes
func (d *Directory) WorkerPath() string {
	return d.workerPath
}

// Len returns the number of nodes
func (d *Directory) Len() int {
	return len(d.nodes)
}
