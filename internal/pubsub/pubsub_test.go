package pubsub_test

import (
	"context"
	"testing"
	"time"

	"fbdevops/internal/logger"
	fbpubsub "fbdevops/internal/pubsub"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTopics(t *testing.T) (*fbpubsub.Topics, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "demo", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return fbpubsub.New(client, logger.Nop()), client
}

func TestCreateAndCheck(t *testing.T) {
	topics, _ := newTopics(t)
	ctx := context.Background()

	require.NoError(t, topics.Create(ctx, "orders"))
	assert.ErrorIs(t, topics.Create(ctx, "orders"), fbpubsub.ErrTopicExists)

	st, err := topics.Check(ctx, []string{"orders", "emails"})
	require.NoError(t, err)
	assert.Equal(t, []fbpubsub.TopicStatus{{Name: "orders", Exists: true}, {Name: "emails", Exists: false}}, st)
}

func TestCreateAll_SkipsExisting(t *testing.T) {
	topics, _ := newTopics(t)
	ctx := context.Background()
	require.NoError(t, topics.Create(ctx, "orders"))

	created, err := topics.CreateAll(ctx, []string{"orders", "emails", "audit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emails", "audit"}, created)

	all, err := topics.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "emails", "orders"}, all)
}

func TestEnsure_IsIdempotent(t *testing.T) {
	topics, client := newTopics(t)
	ctx := context.Background()

	require.NoError(t, topics.Ensure(ctx, []string{"orders"}))
	require.NoError(t, topics.Ensure(ctx, []string{"orders"}))

	ok, err := client.Subscription("orders" + fbpubsub.SubscriptionSuffix).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoundTrip(t *testing.T) {
	topics, client := newTopics(t)
	ctx := context.Background()
	require.NoError(t, topics.Create(ctx, "orders"))

	res, err := topics.Test(ctx, "orders", 5*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)

	// the temporary subscription is removed
	it := client.Subscriptions(ctx)
	_, err = it.Next()
	assert.Error(t, err)
}

func TestRoundTrip_MissingTopic(t *testing.T) {
	topics, _ := newTopics(t)

	_, err := topics.Test(context.Background(), "missing", time.Second)
	assert.ErrorIs(t, err, fbpubsub.ErrTopicNotFound)
}
