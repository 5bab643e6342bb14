package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollectionProfiles = "profiles"
)

// MongoDB wraps the driver client and the application database.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB connects, pings, and returns a ready wrapper.
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := databaseName(uri)
	log.Printf("✅ [MONGODB] Connected to database: %s", name)
	return &MongoDB{
		Client:   client,
		Database: client.Database(name),
	}, nil
}

// databaseName pulls the database from the URI path, defaulting when the URI
// names none.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "canvasmind"
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "canvasmind"
	}
	return name
}

// Initialize creates the indexes the service depends on.
func (m *MongoDB) Initialize(ctx context.Context) error {
	profiles := m.Collection(CollectionProfiles)

	_, err := profiles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create profile indexes: %w", err)
	}

	log.Printf("✅ [MONGODB] Indexes initialized")
	return nil
}

// Collection returns a handle on the named collection.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

// Close disconnects the client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
