package pubsub

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// SubscriptionSuffix names the default subscription of each topic.
	SubscriptionSuffix = "-sub"
	testIDAttribute    = "fbdevops-test-id"
)

var (
	ErrTopicExists   = errors.New("topic already exists")
	ErrTopicNotFound = errors.New("topic not found")
	ErrNoMessage     = errors.New("test message not received")
)

type TopicStatus struct {
	Name   string
	Exists bool
}

type TestResult struct {
	ID      string
	Latency time.Duration
}

// Topics manages the topics a project relies on.
type Topics struct {
	client *pubsub.Client
	log    zerolog.Logger
}

func New(client *pubsub.Client, log zerolog.Logger) *Topics {
	return &Topics{client: client, log: log}
}

// List returns the ids of every topic in the project.
func (t *Topics) List(ctx context.Context) ([]string, error) {
	var out []string
	it := t.client.Topics(ctx)
	for {
		topic, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "list topics")
		}
		out = append(out, topic.ID())
	}
	sort.Strings(out)
	return out, nil
}

// Check reports which of the required topics exist.
func (t *Topics) Check(ctx context.Context, required []string) ([]TopicStatus, error) {
	existing, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}

	out := make([]TopicStatus, 0, len(required))
	for _, name := range required {
		out = append(out, TopicStatus{Name: name, Exists: have[name]})
	}
	return out, nil
}

// Create creates a topic. An existing topic is an error.
func (t *Topics) Create(ctx context.Context, name string) error {
	if _, err := t.client.CreateTopic(ctx, name); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Wrap(ErrTopicExists, name)
		}
		return errors.Wrapf(err, "create topic %q", name)
	}
	t.log.Info().Str("topic", name).Msg("📨 Topic created")
	return nil
}

// CreateAll creates the missing topics and returns the ones it created.
func (t *Topics) CreateAll(ctx context.Context, names []string) ([]string, error) {
	var created []string
	for _, name := range names {
		err := t.Create(ctx, name)
		if errors.Is(err, ErrTopicExists) {
			t.log.Debug().Str("topic", name).Msg("topic exists")
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, name)
	}
	return created, nil
}

// Ensure makes sure every topic exists with its default subscription.
func (t *Topics) Ensure(ctx context.Context, names []string) error {
	for _, name := range names {
		topic, err := getOrCreateTopic(ctx, t.client, name)
		if err != nil {
			return err
		}
		if _, err := getOrCreateSub(ctx, t.client, name+SubscriptionSuffix, &pubsub.SubscriptionConfig{
			Topic: topic,
		}); err != nil {
			return err
		}
		t.log.Info().Str("topic", name).Str("subscription", name+SubscriptionSuffix).Msg("✅ Topic ready")
	}
	return nil
}

// Test publishes a tagged message and waits for it on a temporary
// subscription, which is deleted afterwards.
func (t *Topics) Test(ctx context.Context, name string, timeout time.Duration) (TestResult, error) {
	topic := t.client.Topic(name)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return TestResult{}, errors.Wrap(err, "check topic")
	}
	if !ok {
		return TestResult{}, errors.Wrap(ErrTopicNotFound, name)
	}

	id := uuid.NewString()
	subID := "fbdevops-test-" + id[:8]
	sub, err := t.client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:            topic,
		ExpirationPolicy: 24 * time.Hour,
	})
	if err != nil {
		return TestResult{}, errors.Wrap(err, "create test subscription")
	}
	defer func() {
		if err := sub.Delete(context.WithoutCancel(ctx)); err != nil {
			t.log.Warn().Err(err).Str("subscription", subID).Msg("⚠️  Failed to delete test subscription")
		}
	}()

	start := time.Now()
	res := topic.Publish(ctx, &pubsub.Message{
		Data:       []byte(`{"test":true}`),
		Attributes: map[string]string{testIDAttribute: id},
	})
	if _, err := res.Get(ctx); err != nil {
		return TestResult{}, errors.Wrap(err, "publish")
	}
	topic.Stop()

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var received bool
	err = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
		msg.Ack()
		if msg.Attributes[testIDAttribute] == id {
			received = true
			cancel()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return TestResult{}, errors.Wrap(err, "receive")
	}
	if !received {
		return TestResult{ID: id}, errors.Wrapf(ErrNoMessage, "within %s", timeout)
	}

	latency := time.Since(start)
	t.log.Info().Str("topic", name).Dur("latency", latency).Msg("✅ Pub/Sub round trip ok")
	return TestResult{ID: id, Latency: latency}, nil
}

// getOrCreateTopic gets a topic or creates it if it doesn't exist.
func getOrCreateTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check if topic exists")
	}
	if !ok {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create topic (%q)", topicID)
		}
	}
	return topic, nil
}

// getOrCreateSub gets a subscription or creates it if it doesn't exist.
func getOrCreateSub(ctx context.Context, client *pubsub.Client, subID string, cfg *pubsub.SubscriptionConfig) (*pubsub.Subscription, error) {
	sub := client.Subscription(subID)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check if subscription exists")
	}
	if !ok {
		sub, err = client.CreateSubscription(ctx, subID, *cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create subscription (%q)", subID)
		}
	}
	return sub, nil
}
