package client_test

import (
	"context"
	"encoding/base64"
	"testing"

	"fbdevops/internal/client"
	"fbdevops/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Setenv("FIRESTORE_EMULATOR_HOST", "")
	t.Setenv("PUBSUB_EMULATOR_HOST", "")

	opts, err := client.Options(config.Config{})
	require.NoError(t, err)
	assert.Empty(t, opts)

	sa := base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))
	opts, err = client.Options(config.Config{FirestoreSA: sa})
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	_, err = client.Options(config.Config{FirestoreSA: "%%%"})
	assert.Error(t, err)
}

func TestOptions_Emulator(t *testing.T) {
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8080")

	opts, err := client.Options(config.Config{FirestoreSA: "%%%"})
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}

func TestPubSub_RequiresProject(t *testing.T) {
	_, err := client.PubSub(context.Background(), config.Config{})
	assert.Error(t, err)
}
