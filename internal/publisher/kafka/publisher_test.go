package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kgo.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

type event struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (e event) MessageKey() string { return e.Slug }

func TestPublishWritesKeyedMessage(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	pub, err := NewWithWriter(writer)
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	var sent []kgo.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kgo.Message) }).
		Return(nil).Once()

	id, err := pub.Publish(context.Background(), "creatures", event{Slug: "16762-aboleth", Name: "Aboleth"})
	require.NoError(t, err)
	assert.Equal(t, "16762-aboleth", id)

	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "creatures", msg.Topic)
	assert.Equal(t, "16762-aboleth", string(msg.Key))
	assert.Equal(t, fixed, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "application/json", string(msg.Headers[0].Value))

	var got event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "Aboleth", got.Name)
	writer.AssertExpectations(t)
}

func TestPublishUnkeyedPayload(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	pub, err := NewWithWriter(writer)
	require.NoError(t, err)
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kgo.Message) bool {
		return len(msgs) == 1 && msgs[0].Key == nil
	})).Return(nil).Once()

	id, err := pub.Publish(context.Background(), "creatures", map[string]string{"name": "Frog"})
	require.NoError(t, err)
	assert.Empty(t, id)
	writer.AssertExpectations(t)
}

func TestPublishWriteError(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	pub, err := NewWithWriter(writer)
	require.NoError(t, err)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	_, err = pub.Publish(context.Background(), "creatures", event{Slug: "x"})
	assert.ErrorContains(t, err, "broker down")
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	pub, err := NewWithWriter(&mockWriter{})
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "", event{})
	assert.Error(t, err)

	_, err = pub.Publish(context.Background(), "creatures", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.Error(t, err)

	_, err = NewWithWriter(nil)
	assert.Error(t, err)

	pub, err := New([]string{"localhost:9092"})
	require.NoError(t, err)
	assert.NoError(t, pub.Close())
}

func TestClose(t *testing.T) {
	t.Parallel()

	writer := &mockWriter{}
	writer.On("Close").Return(nil).Once()
	pub, err := NewWithWriter(writer)
	require.NoError(t, err)
	assert.NoError(t, pub.Close())
	writer.AssertExpectations(t)
}
