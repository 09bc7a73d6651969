// Package docstore is the document store backing trading records. It exposes a
// generic Repository over one record type and one collection, with a MongoDB
// implementation and an in-memory implementation sharing the same BSON shape.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MemoryScheme selects the in-memory store instead of MongoDB.
const MemoryScheme = "memory://"

// DefaultSortKey orders tenant listings by creation time.
const DefaultSortKey = "audit.createdAt"

var (
	ErrNotFound     = errors.New("record not found")
	ErrUnavailable  = errors.New("document store unavailable")
	ErrInvalidQuery = errors.New("invalid tenant query")
)

// Record is implemented by pointer types persisted through a Repository.
type Record interface {
	GetID() string
	SetID(id string)
}

// RecordPtr constrains PT to be a pointer to T implementing Record, so
// repositories can allocate values when decoding.
type RecordPtr[T any] interface {
	*T
	Record
}

// TenantQuery selects the records of one user within one organization.
type TenantQuery struct {
	OrgID  string
	UserID string
	// SortKey is a dotted document path, DefaultSortKey when empty.
	SortKey    string
	Descending bool
}

func (q TenantQuery) validate() error {
	if q.OrgID == "" || q.UserID == "" {
		return fmt.Errorf("%w: org id and user id are required", ErrInvalidQuery)
	}
	return nil
}

func (q TenantQuery) sortKey() string {
	if q.SortKey == "" {
		return DefaultSortKey
	}
	return q.SortKey
}

// Repository persists one record type.
//
// Save inserts records without an id, assigning one, and fully replaces
// records that already have one. There is no partial update.
type Repository[PT Record] interface {
	Save(ctx context.Context, record PT) (PT, error)
	FindByTenant(ctx context.Context, query TenantQuery) ([]PT, error)
	FindByID(ctx context.Context, id string) (PT, error)
}

// Client is the process wide document store handle. It is opened once at
// startup and closed on shutdown.
type Client struct {
	mongo *mongo.Client
	db    *mongo.Database

	mu     sync.Mutex
	memory map[string]any
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URI      string
	Database string
	// Retries bounds connection attempts on transient failures.
	Retries int
}

// Connect opens the document store. MongoDB connections are verified with a
// ping, retried with exponential backoff up to opts.Retries times.
func Connect(ctx context.Context, opts ConnectOptions) (*Client, error) {
	if strings.HasPrefix(opts.URI, MemoryScheme) {
		log.Warn().Msg("using in-memory document store, data will not survive a restart")
		return NewMemoryClient(), nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(200*time.Millisecond))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("document store ping failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	log.Info().Str("database", opts.Database).Msg("connected to document store")
	return &Client{mongo: client, db: client.Database(opts.Database)}, nil
}

// NewMemoryClient returns a client whose repositories live in process memory.
func NewMemoryClient() *Client {
	return &Client{memory: make(map[string]any)}
}

// IsMemory reports whether the client is backed by process memory.
func (c *Client) IsMemory() bool {
	return c.mongo == nil
}

// Database returns the MongoDB database, nil for memory clients.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	return c.mongo.Disconnect(ctx)
}

// NewRepository returns the repository for collection, backed by whichever
// store the client was opened with. Memory repositories are shared per
// collection name.
func NewRepository[T any, PT RecordPtr[T]](c *Client, collection string) Repository[PT] {
	if !c.IsMemory() {
		return NewMongoRepository[T, PT](c.db.Collection(collection))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.memory[collection].(*MemoryRepository[T, PT]); ok {
		return existing
	}
	repo := NewMemoryRepository[T, PT]()
	c.memory[collection] = repo
	return repo
}

// EnsureTenantIndex creates the compound index serving tenant listings.
func EnsureTenantIndex(ctx context.Context, c *Client, collection string) error {
	if c.IsMemory() {
		return nil
	}
	_, err := c.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant.orgId", Value: 1},
			{Key: "tenant.userId", Value: 1},
			{Key: DefaultSortKey, Value: -1},
		},
		Options: options.Index().SetName("tenant_created"),
	})
	if err != nil {
		return classify("create tenant index", err)
	}
	return nil
}

// classify maps driver errors onto the package sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
