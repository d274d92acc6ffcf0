package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"price_digest/services/dispatcher"
)

// RunsCollection holds one document per digest run
const RunsCollection = "digest_runs"

var ErrNotConfigured = errors.New("run archive not configured")

// runDocument is the stored form of a run summary, keyed by run id
type runDocument struct {
	ID                    string `bson:"_id"`
	dispatcher.RunSummary `bson:",inline"`
}

func toDocument(s dispatcher.RunSummary) runDocument {
	return runDocument{ID: s.RunID, RunSummary: s}
}

// RunArchive stores run summaries in MongoDB
type RunArchive struct {
	uri    string
	dbName string
	logger *zap.Logger

	mu          sync.RWMutex
	client      *mongo.Client
	collection  *mongo.Collection
	isConnected bool
	lastError   string
}

func NewRunArchive(uri, dbName string, logger *zap.Logger) *RunArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunArchive{uri: uri, dbName: dbName, logger: logger}
}

// Connect establishes the connection and creates indexes
func (a *RunArchive) Connect(ctx context.Context) error {
	if a.uri == "" {
		a.setError("MONGODB_URI not set")
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(a.uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		a.setError(fmt.Sprintf("failed to connect: %v", err))
		return fmt.Errorf("connect run archive: %w", err)
	}

	// Verify connection with ping
	if err := client.Ping(ctx, nil); err != nil {
		a.setError(fmt.Sprintf("failed to ping: %v", err))
		client.Disconnect(ctx)
		return fmt.Errorf("ping run archive: %w", err)
	}

	coll := client.Database(a.dbName).Collection(RunsCollection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "started_at", Value: -1}},
	}); err != nil {
		a.logger.Warn("failed to create run archive index", zap.Error(err))
	}

	a.mu.Lock()
	a.client = client
	a.collection = coll
	a.isConnected = true
	a.lastError = ""
	a.mu.Unlock()

	a.logger.Info("run archive connected", zap.String("database", a.dbName))
	return nil
}

func (a *RunArchive) setError(msg string) {
	a.mu.Lock()
	a.isConnected = false
	a.lastError = msg
	a.mu.Unlock()
}

// IsConfigured reports whether the archive is connected
func (a *RunArchive) IsConfigured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isConnected
}

// Status describes the connection for readiness checks
func (a *RunArchive) Status() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	status := map[string]interface{}{
		"uri_set":   a.uri != "",
		"connected": a.isConnected,
	}
	if a.lastError != "" {
		status["error"] = a.lastError
	}
	return status
}

// Record upserts a run summary by run id
func (a *RunArchive) Record(ctx context.Context, s dispatcher.RunSummary) error {
	coll, err := a.coll()
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": s.RunID}, toDocument(s), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", s.RunID, err)
	}
	return nil
}

// Latest returns up to limit summaries, newest first
func (a *RunArchive) Latest(ctx context.Context, limit int64) ([]dispatcher.RunSummary, error) {
	coll, err := a.coll()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query run archive: %w", err)
	}
	var docs []runDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode run archive: %w", err)
	}
	out := make([]dispatcher.RunSummary, len(docs))
	for i, d := range docs {
		out[i] = d.RunSummary
	}
	return out, nil
}

func (a *RunArchive) coll() (*mongo.Collection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.isConnected {
		return nil, ErrNotConfigured
	}
	return a.collection, nil
}

// Close disconnects from MongoDB
func (a *RunArchive) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	a.isConnected = false
	return a.client.Disconnect(ctx)
}
