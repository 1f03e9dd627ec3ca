package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
key_file: $FLOCK_TEST_HOME/.ssh/cluster
worker_path: workers
controller:
  name: ctl
  hostname: 192.168.22.250
  username: pi
nodes:
  - name: pi-1
    hostname: 192.168.22.1
    username: pi
  - name: pi-2
    hostname: 192.168.22.2
    username: pi
  - name: pi-3
    hostname: 192.168.22.3
    username: ubuntu
    key_file: /keys/other
`

func TestParse(t *testing.T) {
	t.Setenv("FLOCK_TEST_HOME", "/home/pi")

	dir, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	nodes := dir.Nodes()
	require.Len(t, nodes, 3)

	assert.Equal(t, 1, nodes[0].Index)
	assert.Equal(t, "pi-1", nodes[0].Name)
	assert.Equal(t, "/home/pi/.ssh/cluster", nodes[0].KeyFile)
	assert.Equal(t, "workers", nodes[0].WorkerPath)
	assert.Equal(t, "pi@192.168.22.1", nodes[0].UserHost())

	assert.Equal(t, 3, nodes[2].Index)
	assert.Equal(t, "/keys/other", nodes[2].KeyFile)

	require.NotNil(t, dir.Controller())
	assert.Equal(t, "ctl", dir.Controller().Name)
	assert.Equal(t, "workers", dir.WorkerPath())
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed yaml", data: "nodes: [name: x"},
		{name: "no nodes", data: "worker_path: workers\n"},
		{name: "missing hostname", data: "nodes:\n  - name: a\n"},
		{name: "missing name", data: "nodes:\n  - hostname: 10.0.0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.conf")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	dir, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Len())
}

func TestSelect(t *testing.T) {
	dir, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	tests := []struct {
		name     string
		start    int
		count    int
		expected []string
	}{
		{name: "defaults select all", start: 1, count: 0, expected: []string{"pi-1", "pi-2", "pi-3"}},
		{name: "zero start treated as one", start: 0, count: 0, expected: []string{"pi-1", "pi-2", "pi-3"}},
		{name: "offset", start: 2, count: 0, expected: []string{"pi-2", "pi-3"}},
		{name: "offset and count", start: 2, count: 1, expected: []string{"pi-2"}},
		{name: "count larger than remaining", start: 3, count: 5, expected: []string{"pi-3"}},
		{name: "start past end", start: 4, count: 0, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, n := range dir.Select(tt.start, tt.count) {
				names = append(names, n.Name)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	assert.Equal(t, DefaultConfigFilename, ResolvePath(""))

	t.Setenv(ConfigEnv, "/etc/flock/cluster.conf")
	assert.Equal(t, "/etc/flock/cluster.conf", ResolvePath(""))
	assert.Equal(t, "mine.conf", ResolvePath("mine.conf"))
}
