// Package mongo implements store.Store on a MongoDB collection.
//
// Records are stored as documents
//
//	{_id: key, d: payload, created_at: seconds, l: seconds | null, t: [tags]}
//
// with majority write concern. The client is created on first use; with
// Persistent set, clients are shared per connection URI across every Store in
// the process and survive Close.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/unkn0wn-root/tagcache/internal/lazy"
	"github.com/unkn0wn-root/tagcache/store"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 27017
	DefaultDatabase   = "Db_Cache"
	DefaultCollection = "C_Cache"

	defaultConnectTimeout = 10 * time.Second
)

// Config selects the server and collection.
type Config struct {
	// URI, when set, is used verbatim and Host/Port/ReplicaSet are ignored.
	URI  string
	Host string
	Port int

	Database   string
	Collection string

	// ReplicaSet names the replica set to join; empty connects directly.
	ReplicaSet string
	// PreferSecondary reads from secondaries when available.
	PreferSecondary bool
	// Persistent shares the client per URI and keeps it open on Close.
	Persistent bool

	ConnectTimeout time.Duration

	// Client, when set, is used instead of dialing. The Store never
	// disconnects a client it did not create.
	Client *mongo.Client
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return c
}

// ConnectionURI returns the URI the store dials.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	c = c.withDefaults()
	uri := "mongodb://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/"
	if c.ReplicaSet != "" {
		uri += "?replicaSet=" + c.ReplicaSet
	}
	return uri
}

type conn struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool // disconnect on Close
}

// Store is a store.Store backed by one MongoDB collection.
type Store struct {
	cfg  Config
	conn *lazy.Cell[conn]
}

var _ store.Store = (*Store)(nil)

// New returns a Store. No connection is made until the first operation.
func New(cfg Config) *Store {
	s := &Store{cfg: cfg.withDefaults()}
	s.conn = lazy.New(s.cfg.ConnectTimeout, s.dial)
	return s
}

var (
	sharedMu      sync.Mutex
	sharedClients = map[string]*mongo.Client{}
)

func (s *Store) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(s.cfg.ConnectionURI()).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetServerSelectionTimeout(s.cfg.ConnectTimeout).
		SetWriteConcern(writeconcern.Majority())
	if s.cfg.PreferSecondary {
		opts.SetReadPreference(readpref.SecondaryPreferred())
	} else {
		opts.SetReadPreference(readpref.Primary())
	}
	return opts
}

func (s *Store) dial(ctx context.Context) (conn, error) {
	client, owned := s.cfg.Client, false
	if client == nil {
		var err error
		client, owned, err = s.newClient(ctx)
		if err != nil {
			return conn{}, fmt.Errorf("%w: mongo connect: %w", store.ErrUnavailable, err)
		}
	}
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		if owned {
			_ = client.Disconnect(context.Background())
		}
		return conn{}, fmt.Errorf("%w: mongo ping: %w", store.ErrUnavailable, err)
	}
	coll := client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	return conn{client: client, coll: coll, owned: owned}, nil
}

// newClient dials a private client, or returns the process-wide client for
// the URI when Persistent is set.
func (s *Store) newClient(ctx context.Context) (*mongo.Client, bool, error) {
	if !s.cfg.Persistent {
		c, err := mongo.Connect(ctx, s.clientOptions())
		return c, true, err
	}
	key := s.cfg.ConnectionURI()
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if c, ok := sharedClients[key]; ok {
		return c, false, nil
	}
	c, err := mongo.Connect(ctx, s.clientOptions())
	if err != nil {
		return nil, false, err
	}
	sharedClients[key] = c
	return c, false, nil
}

func (s *Store) collection(ctx context.Context) (*mongo.Collection, error) {
	c, err := s.conn.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.coll, nil
}

func (s *Store) Connect(ctx context.Context) error {
	_, err := s.conn.Get(ctx)
	return err
}

// Upsert replaces the whole document, so no field of a previous version
// survives.
func (s *Store) Upsert(ctx context.Context, rec store.Record) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	_, err = coll.ReplaceOne(ctx, bson.D{{Key: store.FieldKey, Value: rec.Key}}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert: %w", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, key string) (store.Record, bool, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return store.Record{}, false, err
	}
	var rec store.Record
	err = coll.FindOne(ctx, bson.D{{Key: store.FieldKey, Value: key}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, fmt.Errorf("mongo find: %w", err)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec, true, nil
}

func (s *Store) DeleteOne(ctx context.Context, key string) (int64, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteOne(ctx, bson.D{{Key: store.FieldKey, Value: key}})
	if err != nil {
		return 0, fmt.Errorf("mongo delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, Query(f))
	if err != nil {
		return 0, fmt.Errorf("mongo delete many (%s): %w", f.Op, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Iterate(ctx context.Context, f store.Filter) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		coll, err := s.collection(ctx)
		if err != nil {
			yield(store.Record{}, err)
			return
		}
		cur, err := coll.Find(ctx, Query(f))
		if err != nil {
			yield(store.Record{}, fmt.Errorf("mongo find (%s): %w", f.Op, err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))
		for cur.Next(ctx) {
			var rec store.Record
			if err := cur.Decode(&rec); err != nil {
				yield(store.Record{}, fmt.Errorf("mongo decode: %w", err))
				return
			}
			if rec.Tags == nil {
				rec.Tags = []string{}
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(store.Record{}, fmt.Errorf("mongo cursor: %w", err))
		}
	}
}

// EnsureIndex creates {field: 1}. MongoDB treats an identical existing index
// as success.
func (s *Store) EnsureIndex(ctx context.Context, field string) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	if err != nil {
		return fmt.Errorf("mongo create index on %q: %w", field, err)
	}
	return nil
}

// AggregateTags unwinds the tag arrays and counts documents per tag.
func (s *Store) AggregateTags(ctx context.Context) ([]store.TagCount, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Aggregate(ctx, TagPipeline())
	if err != nil {
		return nil, fmt.Errorf("mongo aggregate tags: %w", err)
	}
	out := []store.TagCount{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo aggregate tags: %w", err)
	}
	return out, nil
}

func (s *Store) DropCollection(ctx context.Context) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("mongo drop: %w", err)
	}
	return nil
}

// Close disconnects the client if this Store dialed it privately. Shared and
// caller-provided clients stay open. A later operation reconnects.
func (s *Store) Close(ctx context.Context) error {
	c, ok := s.conn.Reset()
	if !ok || !c.owned {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}
