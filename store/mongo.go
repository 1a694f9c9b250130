package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds the MongoDB connection settings.
type MongoConfig struct {
	URL            string        `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"email_sender_db"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Mongo keeps outcomes and scheduled records in two collections of one
// database.
type Mongo struct {
	client    *mongo.Client
	outcomes  *mongo.Collection
	scheduled *mongo.Collection
	now       func() time.Time
}

// OpenMongo connects, pings the primary and ensures the job id index.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, cmpDuration(cfg.ConnectTimeout, 10*time.Second))
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}

	m := NewMongo(client, cfg.Database)
	_, err = m.scheduled.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "job_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "schedule_time", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: create mongo indexes: %w", err)
	}
	return m, nil
}

// NewMongo wraps a connected client. The client is disconnected by Close.
func NewMongo(client *mongo.Client, database string) *Mongo {
	db := client.Database(database)
	return &Mongo{
		client:    client,
		outcomes:  db.Collection(outcomesTable),
		scheduled: db.Collection(scheduledTable),
		now:       time.Now,
	}
}

func (m *Mongo) InsertOutcome(ctx context.Context, o *Outcome) error {
	if err := prepareOutcome(o, m.now()); err != nil {
		return err
	}
	if _, err := m.outcomes.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("store: insert outcome: %w", err)
	}
	return nil
}

func (m *Mongo) InsertScheduled(ctx context.Context, rec *ScheduledRecord) error {
	if err := prepareScheduled(rec, m.now()); err != nil {
		return err
	}
	_, err := m.scheduled.ReplaceOne(ctx, bson.M{"job_id": rec.JobID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: insert scheduled record: %w", err)
	}
	return nil
}

func (m *Mongo) FindOutcomes(ctx context.Context, q Query) ([]Outcome, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "sent_at", Value: direction(q.Sort, OrderDesc)},
		{Key: "_id", Value: direction(q.Sort, OrderDesc)},
	})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return find[Outcome](ctx, m.outcomes, bson.M{}, opts, "outcomes")
}

func (m *Mongo) FindScheduled(ctx context.Context, q Query) ([]ScheduledRecord, error) {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "schedule_time", Value: direction(q.Sort, OrderAsc)},
		{Key: "created_at", Value: direction(q.Sort, OrderAsc)},
	})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return find[ScheduledRecord](ctx, m.scheduled, filter, opts, "scheduled records")
}

func (m *Mongo) UpdateScheduledStatus(ctx context.Context, jobID, status string) error {
	res, err := m.scheduled.UpdateOne(ctx,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{"status": status, "updated_at": m.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return err
	}
	return nil
}

func find[T any](ctx context.Context, coll *mongo.Collection, filter any, opts *options.FindOptions, what string) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", what, err)
	}
	res := make([]T, 0)
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", what, err)
	}
	return res, nil
}

func direction(o, fallback Order) int {
	if descending(o, fallback) {
		return -1
	}
	return 1
}

func cmpDuration(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

var _ Store = (*Mongo)(nil)
