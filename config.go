package tagcache

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Drivers accepted by Config.Driver.
const (
	DriverMongo  = "mongo"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config is the file form of a backend configuration. Zero values fall back to
// the driver defaults (MongoDB on 127.0.0.1:27017, database Db_Cache,
// collection C_Cache; Redis on 127.0.0.1:6379).
type Config struct {
	Driver string `yaml:"driver"`

	// URI overrides Host, Port and ReplicaSetName for MongoDB.
	URI  string `yaml:"uri"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	PersistentConnection bool       `yaml:"persistent_connection"`
	Database             string     `yaml:"database"`
	Collection           string     `yaml:"collection"`
	ReplicaSetName       ReplicaSet `yaml:"replica_set_name"`
	PreferSecondaryReads bool       `yaml:"prefer_secondary_reads"`

	DefaultLifetime Duration `yaml:"default_lifetime"`
	IndexPolicy     string   `yaml:"index_policy"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`

	// Redis only.
	Namespace      string `yaml:"namespace"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	RecordCodec    string `yaml:"record_codec"`     // msgpack (default), cbor or json
	MaxRecordBytes int    `yaml:"max_record_bytes"` // 0 = unlimited
}

// DefaultConfig returns the configuration used for keys absent from a file.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMongo,
		DefaultLifetime: Duration(time.Hour),
		IndexPolicy:     IndexOnce.String(),
		ConnectTimeout:  Duration(10 * time.Second),
	}
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &OpError{Op: "parse config", Kind: ErrInvalidConfig, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &OpError{Op: "load config", Kind: ErrInvalidConfig, Err: err}
	}
	return ParseConfig(data)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverMongo, DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("driver: unknown %q", c.Driver))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: %d out of range", c.Port))
	}
	if c.DefaultLifetime < 0 {
		errs = append(errs, fmt.Errorf("default_lifetime: negative %s", time.Duration(c.DefaultLifetime)))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect_timeout: negative %s", time.Duration(c.ConnectTimeout)))
	}
	if _, err := ParseIndexPolicy(c.IndexPolicy); err != nil {
		errs = append(errs, fmt.Errorf("index_policy: %w", err))
	}
	switch c.RecordCodec {
	case "", "msgpack", "cbor", "json":
	default:
		errs = append(errs, fmt.Errorf("record_codec: unknown %q", c.RecordCodec))
	}
	if c.MaxRecordBytes < 0 {
		errs = append(errs, fmt.Errorf("max_record_bytes: negative %d", c.MaxRecordBytes))
	}
	if c.DB < 0 {
		errs = append(errs, fmt.Errorf("db: negative %d", c.DB))
	}
	if len(errs) > 0 {
		return &OpError{Op: "validate config", Kind: ErrInvalidConfig, Err: errors.Join(errs...)}
	}
	return nil
}

// Duration is a time.Duration that reads from YAML either as a Go duration
// string ("90s", "1h") or as an integer number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.ShortTag() == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ReplicaSet is a replica set name. In YAML it is a string, or false for
// none; true names no set and is rejected.
type ReplicaSet string

func (r *ReplicaSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: replica set must be a scalar", node.Line)
	}
	if node.ShortTag() == "!!bool" {
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		if b {
			return fmt.Errorf("line %d: replica set must be a name or false, got true", node.Line)
		}
		*r = ""
		return nil
	}
	*r = ReplicaSet(node.Value)
	return nil
}
