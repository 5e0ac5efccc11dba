// Package mongostore loads the tenant directory from a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

const defaultTimeout = 10 * time.Second

// ErrInvalidTenant is returned by Upsert for tenants without an id or slug.
var ErrInvalidTenant = errors.New("mongostore: tenant id and slug are required")

// document is the stored shape of a tenant. The numeric id is the tenant id, not the
// Mongo _id.
type document struct {
	ID         int64          `bson:"id"`
	Slug       string         `bson:"slug"`
	Name       string         `bson:"name"`
	Domain     string         `bson:"domain,omitempty"`
	Domains    []string       `bson:"domains,omitempty"`
	IsActive   bool           `bson:"is_active"`
	TemplateID *int64         `bson:"template_id,omitempty"`
	Settings   map[string]any `bson:"settings,omitempty"`
}

func (d document) tenant() tenant.Tenant {
	return tenant.Tenant{
		ID:         d.ID,
		Slug:       d.Slug,
		Name:       d.Name,
		Domain:     d.Domain,
		Domains:    d.Domains,
		IsActive:   d.IsActive,
		TemplateID: d.TemplateID,
		Settings:   d.Settings,
	}
}

func fromTenant(t tenant.Tenant) document {
	return document{
		ID:         t.ID,
		Slug:       t.Slug,
		Name:       t.Name,
		Domain:     t.Domain,
		Domains:    t.Domains,
		IsActive:   t.IsActive,
		TemplateID: t.TemplateID,
		Settings:   t.Settings,
	}
}

// Source implements tenant.Source over a collection.
type Source struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	log     logger.Logger
}

var (
	connectMongo = func(opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(opts)
	}
	pingMongo = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
)

// Connect opens a client for cfg.URI and pings the primary.
func Connect(ctx context.Context, cfg config.MongoConfig, log logger.Logger) (*Source, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := connectMongo(opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pingMongo(pingCtx, client); err != nil {
		if dErr := client.Disconnect(context.Background()); dErr != nil {
			log.Error().Err(dErr).Msg("Failed to disconnect MongoDB client after ping failure")
		}
		return nil, config.NewConnectionError("mongo", err.Error(), []string{
			"check mongo.uri",
			"check that the server accepts connections from this host",
		})
	}

	log.Info().
		Str("database", cfg.Database).
		Str("collection", cfg.Collection).
		Msg("Connected to MongoDB tenant source")

	s := NewSource(client.Database(cfg.Database).Collection(cfg.Collection), timeout, log)
	s.client = client
	return s, nil
}

// NewSource wraps an existing collection.
func NewSource(coll *mongo.Collection, timeout time.Duration, log logger.Logger) *Source {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Source{coll: coll, timeout: timeout, log: log}
}

// Tenants returns every stored tenant ordered by id.
func (s *Source) Tenants(ctx context.Context) ([]tenant.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find tenants: %w", err)
	}
	defer cur.Close(ctx)

	var out []tenant.Tenant
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode tenant: %w", err)
		}
		out = append(out, doc.tenant())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongostore: iterate tenants: %w", err)
	}
	return out, nil
}

// Upsert stores t keyed by its id.
func (s *Source) Upsert(ctx context.Context, t tenant.Tenant) error {
	if t.ID <= 0 || t.Slug == "" {
		return ErrInvalidTenant
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "id", Value: t.ID}},
		fromTenant(t),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: upsert tenant %d: %w", t.ID, err)
	}
	return nil
}

// EnsureIndexes creates the unique index on the tenant id.
func (s *Source) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("tenant_id_unique"),
	})
	if err != nil {
		return fmt.Errorf("mongostore: create index: %w", err)
	}
	return nil
}

// Health pings the server.
func (s *Source) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return pingMongo(ctx, s.coll.Database().Client())
}

// Close disconnects the client opened by Connect.
func (s *Source) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

var _ tenant.Source = (*Source)(nil)
