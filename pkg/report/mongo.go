package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoCollection receives one document per record.
const DefaultMongoCollection = "diagnostics"

// MongoSink stores records as documents, one per record.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
	runID  string

	mu  sync.Mutex
	seq int
}

type mongoRecord struct {
	RunID     string    `bson:"run_id"`
	Seq       int       `bson:"seq"`
	Package   string    `bson:"package"`
	Category  string    `bson:"category"`
	Severity  int       `bson:"severity"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
}

// OpenMongoSink connects to uri and verifies the server is reachable.
func OpenMongoSink(ctx context.Context, uri, database, runID string) (*MongoSink, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo sink: uri and database are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoSink{
		client: client,
		coll:   client.Database(database).Collection(DefaultMongoCollection),
		runID:  runID,
	}, nil
}

func (s *MongoSink) Write(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := toMongoDocuments(s.runID, s.seq, time.Now().UTC(), records)
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	s.seq += len(docs)
	return nil
}

func toMongoDocuments(runID string, seq int, now time.Time, records []Record) []any {
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = mongoRecord{
			RunID:     runID,
			Seq:       seq + i + 1,
			Package:   r.Package,
			Category:  string(r.Category),
			Severity:  int(r.Severity),
			Message:   r.Message,
			CreatedAt: now,
		}
	}
	return docs
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Sink = (*MongoSink)(nil)
