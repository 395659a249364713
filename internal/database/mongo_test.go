package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoContract(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MongoDB container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetDirect(true))
	require.NoError(t, err)

	svc := NewMongoFromClient(client, "forklore_test")
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	require.NoError(t, svc.EnsureIndexes(ctx))
	health, err := svc.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "mongo", health["driver"])

	runStoreContract(t, svc)
}
