package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/abgdnv/gomarketplace/pkg/messaging"
	"github.com/abgdnv/gomarketplace/pkg/messaging/events"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
)

// skipIntegrationTests is the environment variable that controls whether to skip integration tests.
const skipIntegrationTests = "CART_SKIP_INTEGRATION_TESTS"
const natsImg = "nats:2.11.6-alpine"

// PublisherSuite runs the JetStream publisher against a real NATS server.
type PublisherSuite struct {
	suite.Suite
	ctx           context.Context
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
	js            jetstream.JetStream
}

func (s *PublisherSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	s.nc, err = NewClient(natsURL, 5*time.Second)
	require.NoError(s.T(), err, "Failed to connect to NATS")

	s.js, err = NewJetStreamContext(s.nc)
	require.NoError(s.T(), err, "Failed to get JetStream context")
}

func (s *PublisherSuite) TearDownSuite() {
	if s.nc != nil {
		s.nc.Close()
	}
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.T().Logf("Failed to terminate NATS container: %v", err)
	}
}

func TestPublisherIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) TestPublishCartUpdated() {
	// given
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	s.Require().NoError(EnsureStream(ctx, s.js, messaging.CartStream, messaging.CartUpdatedSubject))
	// idempotent
	s.Require().NoError(EnsureStream(ctx, s.js, messaging.CartStream, messaging.CartUpdatedSubject))
	publisher := NewNatsPublisher(s.js)
	event := events.CartUpdatedEvent{
		Generation: 7,
		Items:      []events.CartItem{{ID: "1", Title: "Shirt", ImageURL: "u", Price: 10, Quantity: 2}},
		TotalItems: 2,
		UpdatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	// when
	err := publisher.Publish(ctx, event)

	// then
	s.Require().NoError(err)
	consumer, err := s.js.OrderedConsumer(ctx, messaging.CartStream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.CartUpdatedSubject},
	})
	s.Require().NoError(err)
	msg, err := consumer.Next(jetstream.FetchMaxWait(5 * time.Second))
	s.Require().NoError(err)

	var received events.CartUpdatedEvent
	s.Require().NoError(json.Unmarshal(msg.Data(), &received))
	s.Equal(event, received)
}

func (s *PublisherSuite) TestPublishDeduplicates() {
	// given
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	s.Require().NoError(EnsureStream(ctx, s.js, messaging.CartStream, messaging.CartUpdatedSubject))
	stream, err := s.js.Stream(ctx, messaging.CartStream)
	s.Require().NoError(err)
	before, err := stream.Info(ctx)
	s.Require().NoError(err)
	publisher := NewNatsPublisher(s.js)
	event := events.CartUpdatedEvent{Generation: 8, Items: []events.CartItem{}, UpdatedAt: time.Now().UTC()}

	// when the same event is published twice, as after a retried publish
	s.Require().NoError(publisher.Publish(ctx, event))
	s.Require().NoError(publisher.Publish(ctx, event))

	// then
	after, err := stream.Info(ctx)
	s.Require().NoError(err)
	s.Equal(before.State.Msgs+1, after.State.Msgs)
}

func (s *PublisherSuite) TestPublishWithoutStream() {
	// given
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	publisher := NewNatsPublisher(s.js)

	// when
	err := publisher.Publish(ctx, unroutedEvent{})

	// then
	s.Error(err)
}

// unroutedEvent is published on a subject that no stream captures.
type unroutedEvent struct{}

func (unroutedEvent) Subject() string          { return "cart.unrouted" }
func (unroutedEvent) Payload() ([]byte, error) { return []byte("{}"), nil }
