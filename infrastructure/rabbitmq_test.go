package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forms-api/domain"
)

type fakeChannel struct {
	key string
	msg amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key = key
	f.msg = msg
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestRabbitMQ_PublishSubmission(t *testing.T) {
	ch := &fakeChannel{}
	rmq := newRabbitMQWithChannel(ch, "submission_events")
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	err := rmq.PublishSubmission(context.Background(), domain.SubmissionEvent{
		Kind:        domain.KindCareer,
		Name:        "Ann",
		Email:       "ann@x.com",
		SubmittedAt: at,
		ResumeURL:   "https://x/y.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "submission_events", ch.key)
	assert.Equal(t, "submission.created", ch.msg.Type)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var got map[string]any
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.Equal(t, "career", got["kind"])
	assert.Equal(t, "https://x/y.pdf", got["resume_url"])
	assert.NoError(t, rmq.Close())
}
