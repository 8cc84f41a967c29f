package tagcache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/store"
	"github.com/unkn0wn-root/tagcache/store/memory"
	"github.com/unkn0wn-root/tagcache/store/mongo"
	redisstore "github.com/unkn0wn-root/tagcache/store/redis"
)

const defaultRedisPort = 6379

// Open validates cfg, builds the store for cfg.Driver and returns a Backend
// over it. The store fields of opts are filled from cfg; Logger, Hooks and
// Clock are used as given. The returned Backend owns the store.
func Open(ctx context.Context, cfg Config, opts Options) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ParseIndexPolicy(cfg.IndexPolicy)

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	opts.Store = st
	opts.DefaultLifetime = time.Duration(cfg.DefaultLifetime)
	opts.IndexPolicy = policy

	b, err := New(ctx, opts)
	if err != nil {
		_ = st.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return b, nil
}

// OpenStore builds the store selected by cfg.Driver without connecting.
func OpenStore(cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case DriverMongo:
		return mongo.New(mongoConfig(cfg)), nil
	case DriverRedis:
		host := coalesce(cfg.Host, "127.0.0.1")
		port := coalesce(cfg.Port, defaultRedisPort)
		client := goredis.NewClient(&goredis.Options{
			Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: time.Duration(cfg.ConnectTimeout),
		})
		rc, err := recordCodec(cfg)
		if err != nil {
			_ = client.Close()
			return nil, &OpError{Op: "open", Kind: ErrInvalidConfig, Err: err}
		}
		s, err := redisstore.New(redisstore.Config{
			Client:         client,
			CloseClient:    true,
			Namespace:      cfg.Namespace,
			Codec:          rc,
			ConnectTimeout: time.Duration(cfg.ConnectTimeout),
		})
		if err != nil {
			_ = client.Close()
			return nil, &OpError{Op: "open", Kind: ErrInvalidConfig, Err: err}
		}
		return s, nil
	case DriverMemory:
		return memory.New(), nil
	}
	return nil, &OpError{Op: "open", Kind: ErrInvalidConfig, Err: errUnknownDriver(cfg.Driver)}
}

func mongoConfig(cfg Config) mongo.Config {
	return mongo.Config{
		URI:             cfg.URI,
		Host:            cfg.Host,
		Port:            cfg.Port,
		Database:        cfg.Database,
		Collection:      cfg.Collection,
		ReplicaSet:      string(cfg.ReplicaSetName),
		PreferSecondary: cfg.PreferSecondaryReads,
		Persistent:      cfg.PersistentConnection,
		ConnectTimeout:  time.Duration(cfg.ConnectTimeout),
	}
}

func recordCodec(cfg Config) (codec.Codec[store.Record], error) {
	var c codec.Codec[store.Record]
	switch cfg.RecordCodec {
	case "cbor":
		cc, err := codec.NewCBOR[store.Record](true)
		if err != nil {
			return nil, fmt.Errorf("record_codec cbor: %w", err)
		}
		c = cc
	case "json":
		c = codec.JSON[store.Record]{}
	default:
		c = codec.Msgpack[store.Record]{}
	}
	if cfg.MaxRecordBytes > 0 {
		c = codec.Limit[store.Record]{Inner: c, MaxDecode: cfg.MaxRecordBytes}
	}
	return c, nil
}

type errUnknownDriver string

func (e errUnknownDriver) Error() string { return "unknown driver " + strconv.Quote(string(e)) }
