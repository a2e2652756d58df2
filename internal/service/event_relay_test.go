package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convconv/internal/service"
)

type fakePublisher struct {
	channel     string
	message     interface{}
	hasDeadline bool
	err         error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	_, p.hasDeadline = ctx.Deadline()
	p.channel = channel
	p.message = message
	return redis.NewIntResult(1, p.err)
}

func TestRedisEventRelay_Publish(t *testing.T) {
	pub := &fakePublisher{}
	relay := service.NewRedisEventRelay(pub, "convconv:events:")

	require.NoError(t, relay.Publish(context.Background(), "job-1", []byte(`{"type":"progress"}`)))
	assert.Equal(t, "convconv:events:job-1", pub.channel)
	assert.Equal(t, []byte(`{"type":"progress"}`), pub.message)
	assert.True(t, pub.hasDeadline)
}

func TestRedisEventRelay_WrapsError(t *testing.T) {
	cause := errors.New("connection refused")
	relay := service.NewRedisEventRelay(&fakePublisher{err: cause}, "p:")

	err := relay.Publish(context.Background(), "j", []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "p:j")
}
