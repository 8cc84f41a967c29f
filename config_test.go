package tagcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, DriverMongo, cfg.Driver)
	assert.Equal(t, Duration(time.Hour), cfg.DefaultLifetime)
}

func TestParseConfigFull(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
driver: mongo
host: db.internal
port: 27018
persistent_connection: true
database: cache
collection: entries
replica_set_name: rs0
prefer_secondary_reads: true
default_lifetime: 7200
index_policy: every_write
connect_timeout: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Driver:               DriverMongo,
		Host:                 "db.internal",
		Port:                 27018,
		PersistentConnection: true,
		Database:             "cache",
		Collection:           "entries",
		ReplicaSetName:       "rs0",
		PreferSecondaryReads: true,
		DefaultLifetime:      Duration(2 * time.Hour),
		IndexPolicy:          "every_write",
		ConnectTimeout:       Duration(2 * time.Second),
	}, cfg)
}

func TestParseConfigReplicaSet(t *testing.T) {
	tests := []struct {
		yaml string
		want ReplicaSet
	}{
		{"replica_set_name: rs0", "rs0"},
		{"replica_set_name: false", ""},
		{`replica_set_name: "false"`, "false"},
		{"replica_set_name: ''", ""},
		{"{}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.yaml, func(t *testing.T) {
			cfg, err := ParseConfig([]byte("driver: mongo\n" + tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.ReplicaSetName)
		})
	}

	cfg, err := ParseConfig([]byte("driver: mongo\nreplica_set_name: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://127.0.0.1:27017/", mongoConfig(cfg).ConnectionURI())
}

func TestParseConfigInfiniteLifetime(t *testing.T) {
	cfg, err := ParseConfig([]byte("default_lifetime: 0"))
	require.NoError(t, err)
	assert.Zero(t, cfg.DefaultLifetime)
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "driver: cassandra"},
		{"port range", "port: 70000"},
		{"negative lifetime", "default_lifetime: -5"},
		{"bad duration", "connect_timeout: soon"},
		{"bad policy", "index_policy: sometimes"},
		{"bad codec", "driver: redis\nrecord_codec: xml"},
		{"negative db", "driver: redis\ndb: -1"},
		{"not yaml", "driver: [mongo"},
		{"replica set true", "replica_set_name: true"},
		{"replica set list", "replica_set_name: [a]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	err := Config{Driver: "x", Port: -1, IndexPolicy: "y"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "index_policy")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: memory\ndefault_lifetime: 90s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, Duration(90*time.Second), cfg.DefaultLifetime)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))
}

func TestParseIndexPolicy(t *testing.T) {
	for _, p := range []IndexPolicy{IndexOnce, IndexEveryWrite, IndexEager} {
		got, err := ParseIndexPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParseIndexPolicy("")
	require.NoError(t, err)
	assert.Equal(t, IndexOnce, got)
}
