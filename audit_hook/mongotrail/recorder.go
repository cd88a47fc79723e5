// Package mongotrail stores trail events in a MongoDB collection.
//
// It is the reference Recorder backend for audithook: one document per
// event, append-only, indexed for per-resource and per-action review
// queries.
package mongotrail

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	audithook "github.com/quayside/stockledger/audit_hook"
)

// defaultCollection is the collection trail events land in unless
// WithCollection overrides it.
const defaultCollection = "stockledger_trail"

// compile-time interface check
var _ audithook.Recorder = (*Recorder)(nil)

// Recorder writes trail events to a MongoDB collection.
type Recorder struct {
	col *mongo.Collection
}

// Option configures a Recorder.
type Option func(*config)

type config struct {
	collection string
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(c *config) {
		c.collection = name
	}
}

// New creates a Recorder writing to db. The caller owns the client and
// its lifecycle.
func New(db *mongo.Database, opts ...Option) *Recorder {
	cfg := config{collection: defaultCollection}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Recorder{col: db.Collection(cfg.collection)}
}

// trailDoc is the stored shape of a trail event.
type trailDoc struct {
	Action     string         `bson:"action"`
	Resource   string         `bson:"resource"`
	Category   string         `bson:"category"`
	ResourceID string         `bson:"resource_id,omitempty"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Outcome    string         `bson:"outcome"`
	Severity   string         `bson:"severity"`
	Reason     string         `bson:"reason,omitempty"`
	OccurredAt time.Time      `bson:"occurred_at"`
}

// Record implements audithook.Recorder.
func (r *Recorder) Record(ctx context.Context, event *audithook.TrailEvent) error {
	doc := trailDoc{
		Action:     event.Action,
		Resource:   event.Resource,
		Category:   event.Category,
		ResourceID: event.ResourceID,
		Metadata:   event.Metadata,
		Outcome:    event.Outcome,
		Severity:   event.Severity,
		Reason:     event.Reason,
		OccurredAt: event.OccurredAt,
	}
	if doc.OccurredAt.IsZero() {
		doc.OccurredAt = time.Now().UTC()
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongotrail: insert event: %w", err)
	}
	return nil
}

// EnsureIndexes creates the review-query indexes. Call once at wiring
// time; index creation is idempotent.
func (r *Recorder) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("idx_trail_occurred"),
		},
	}

	if _, err := r.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongotrail: create indexes: %w", err)
	}
	return nil
}
