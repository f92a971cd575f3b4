package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var loadTestEnvOnce sync.Once

// loadTestEnv reads the project .env so MONGO_URI_TEST can live there.
func loadTestEnv() {
	loadTestEnvOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
		if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
			_ = godotenv.Load()
		}
	})
}

// TestMongoURI returns MONGO_URI_TEST, or "" when database tests should be skipped.
func TestMongoURI() string {
	loadTestEnv()
	return os.Getenv("MONGO_URI_TEST")
}

// SetupTestDB connects to MONGO_URI_TEST and drops the given collections.
// The test is skipped when no test database is configured.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	uri := TestMongoURI()
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set; skipping database test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(ctx)
	}
	return db
}
