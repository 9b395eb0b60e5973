//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"certledger/internal/events"
	"certledger/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *events.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	publisher, err := events.NewKafkaPublisher(context.Background(), []string{s.redpanda.Broker})
	s.Require().NoError(err)
	s.publisher = publisher
	s.T().Cleanup(publisher.Close)
}

func (s *KafkaPublisherSuite) TestPublish() {
	ctx := context.Background()
	occurredAt := time.Now().UTC().Truncate(time.Millisecond)
	published := events.Event{
		Type:        events.TypeCertificateIssued,
		AggregateID: "cert-1",
		OccurredAt:  occurredAt,
		Attributes:  map[string]string{"outcome": "attested"},
	}
	s.Require().NoError(s.publisher.Publish(ctx, published))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(events.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(pollCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	// Keyed by aggregate id so per-aggregate ordering holds within a partition.
	s.Equal("cert-1", string(records[0].Key))

	var consumed events.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &consumed))
	s.Equal(events.TypeCertificateIssued, consumed.Type)
	s.Equal("cert-1", consumed.AggregateID)
	s.Equal("attested", consumed.Attributes["outcome"])
	s.True(consumed.OccurredAt.Equal(occurredAt))
}
