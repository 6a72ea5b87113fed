package mongodb

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/podfs/podfs-go/internal/storage/types"
)

// ObjectDocument represents a pod object in MongoDB
type ObjectDocument struct {
	ID          string    `bson:"_id"`
	Namespace   string    `bson:"namespace"`
	Path        string    `bson:"path"`
	Data        []byte    `bson:"data"`
	Size        int64     `bson:"size"`
	ContentType string    `bson:"content_type"`
	Mtime       time.Time `bson:"mtime"`
}

// MongoBackend implements types.Backend using MongoDB
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	namespace  string
}

var _ types.Backend = (*MongoBackend)(nil)

// NewMongoBackend creates a new MongoDB backend
func NewMongoBackend(uri, database, collection, namespace string) (*MongoBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "namespace", Value: 1},
			{Key: "path", Value: 1},
		},
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &MongoBackend{
		client:     client,
		collection: coll,
		namespace:  namespace,
	}, nil
}

func (m *MongoBackend) docID(path string) string {
	return m.namespace + "|" + path
}

// Read reads an object
func (m *MongoBackend) Read(ctx context.Context, path string) (*types.Object, error) {
	var doc ObjectDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": m.docID(path)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return &types.Object{
		Path:        doc.Path,
		Data:        doc.Data,
		ContentType: doc.ContentType,
		Mtime:       doc.Mtime,
	}, nil
}

// Write upserts an object
func (m *MongoBackend) Write(ctx context.Context, path string, data []byte, contentType string) error {
	if data == nil {
		data = []byte{}
	}
	doc := ObjectDocument{
		ID:          m.docID(path),
		Namespace:   m.namespace,
		Path:        path,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: contentType,
		Mtime:       time.Now().UTC(),
	}

	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// Delete deletes an object
func (m *MongoBackend) Delete(ctx context.Context, path string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": m.docID(path)})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	return nil
}

// List lists object paths with the given prefix
func (m *MongoBackend) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{
		"namespace": m.namespace,
		"path":      bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "path", Value: 1}}).
		SetProjection(bson.M{"path": 1})

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer cursor.Close(ctx)

	paths := make([]string, 0)
	for cursor.Next(ctx) {
		var doc ObjectDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		paths = append(paths, doc.Path)
	}
	return paths, cursor.Err()
}

// Exists checks if an object exists
func (m *MongoBackend) Exists(ctx context.Context, path string) (bool, error) {
	count, err := m.collection.CountDocuments(ctx, bson.M{"_id": m.docID(path)})
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the MongoDB connection
func (m *MongoBackend) Close() error {
	return m.client.Disconnect(context.Background())
}
