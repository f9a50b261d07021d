package store_test

import (
	"context"
	"os"
	"testing"

	"fbdevops/internal/store"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestCollections(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	fs, err := firestore.NewClient(ctx, "fbdevops-store-test")
	require.NoError(t, err)
	defer fs.Close()

	for _, id := range []string{"a", "b", "c"} {
		_, err := fs.Collection("orders").Doc(id).Set(ctx, map[string]any{"id": id})
		require.NoError(t, err)
	}
	_, err = fs.Collection("users").Doc("u1").Set(ctx, map[string]any{"name": "x"})
	require.NoError(t, err)

	s := store.New(fs)
	stats, err := s.Collections(ctx)
	require.NoError(t, err)

	assert.Contains(t, stats, store.CollectionStat{Name: "orders", Documents: 3})
	assert.Contains(t, stats, store.CollectionStat{Name: "users", Documents: 1})
}
