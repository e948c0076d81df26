package kafka_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odpf/salt/log"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	backend "github.com/raystack/scale/ext/messaging/kafka"
)

func TestBackend(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoop()

	t.Run("NewBackend", func(t *testing.T) {
		t.Run("returns error when brokers are empty", func(t *testing.T) {
			b, err := backend.NewBackend(backend.Config{Topic: "scale", GroupID: "scale"}, logger)
			assert.Nil(t, b)
			assert.ErrorContains(t, err, "kafka brokers are empty")
		})
		t.Run("returns error when group id is empty", func(t *testing.T) {
			b, err := backend.NewBackend(backend.Config{Brokers: []string{"localhost:9092"}, Topic: "scale"}, logger)
			assert.Nil(t, b)
			assert.ErrorContains(t, err, "kafka topic and group id are required")
		})
	})
	t.Run("Send", func(t *testing.T) {
		t.Run("writes every body as a message", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)

			writer.On("WriteMessages", ctx, []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}}).Return(nil).Once()

			b := backend.New(writer, new(mockReader), time.Second, logger)
			assert.Nil(t, b.Send(ctx, [][]byte{[]byte("a"), []byte("b")}))
		})
		t.Run("does nothing for an empty batch", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)

			b := backend.New(writer, new(mockReader), time.Second, logger)
			assert.Nil(t, b.Send(ctx, nil))
		})
		t.Run("retries the remaining messages when one is too large", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)

			large := kafka.Message{Value: []byte("large")}
			small := kafka.Message{Value: []byte("small")}
			writer.On("WriteMessages", ctx, []kafka.Message{large, small}).
				Return(kafka.MessageTooLargeError{Message: large, Remaining: []kafka.Message{small}}).Once()
			writer.On("WriteMessages", ctx, []kafka.Message{small}).Return(nil).Once()

			b := backend.New(writer, new(mockReader), time.Second, logger)
			assert.Nil(t, b.Send(ctx, [][]byte{[]byte("large"), []byte("small")}))
		})
		t.Run("returns other write errors", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)

			writer.On("WriteMessages", ctx, []kafka.Message{{Value: []byte("a")}}).Return(errors.New("broker down")).Once()

			b := backend.New(writer, new(mockReader), time.Second, logger)
			assert.EqualError(t, b.Send(ctx, [][]byte{[]byte("a")}), "broker down")
		})
	})
	t.Run("Receive", func(t *testing.T) {
		t.Run("fills the batch up to max", func(t *testing.T) {
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Value: []byte("a"), Offset: 1}, nil).Once()
			reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Value: []byte("b"), Offset: 2}, nil).Once()

			b := backend.New(new(mockWriter), reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 2)
			assert.Nil(t, err)
			assert.Len(t, deliveries, 2)
			assert.Equal(t, []byte("a"), deliveries[0].Body())
			assert.Equal(t, []byte("b"), deliveries[1].Body())
		})
		t.Run("returns a partial batch when the wait time elapses", func(t *testing.T) {
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Value: []byte("a")}, nil).Once()
			reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, context.DeadlineExceeded).Once()

			b := backend.New(new(mockWriter), reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 5)
			assert.Nil(t, err)
			assert.Len(t, deliveries, 1)
		})
		t.Run("returns fetch error when nothing was received", func(t *testing.T) {
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, errors.New("group closed")).Once()

			b := backend.New(new(mockWriter), reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 5)
			assert.Nil(t, deliveries)
			assert.EqualError(t, err, "group closed")
		})
		t.Run("commits acked messages", func(t *testing.T) {
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			acked := kafka.Message{Value: []byte("a"), Offset: 1}
			reader.On("FetchMessage", mock.Anything).Return(acked, nil).Once()
			reader.On("CommitMessages", ctx, []kafka.Message{acked}).Return(nil).Once()

			b := backend.New(new(mockWriter), reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 1)
			assert.Nil(t, err)
			assert.Nil(t, deliveries[0].Ack(ctx))
		})
		t.Run("requeues a nacked message before a later ack commits past it", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			nacked := kafka.Message{Value: []byte("a"), Offset: 1}
			acked := kafka.Message{Value: []byte("b"), Offset: 2}
			reader.On("FetchMessage", mock.Anything).Return(nacked, nil).Once()
			reader.On("FetchMessage", mock.Anything).Return(acked, nil).Once()
			writer.On("WriteMessages", ctx, []kafka.Message{{Value: []byte("a")}}).Return(nil).Once()
			reader.On("CommitMessages", ctx, []kafka.Message{nacked}).Return(nil).Once()
			reader.On("CommitMessages", ctx, []kafka.Message{acked}).Return(nil).Once()

			b := backend.New(writer, reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 2)
			assert.Nil(t, err)
			assert.Nil(t, deliveries[0].Nack(ctx))
			assert.Nil(t, deliveries[1].Ack(ctx))
		})
		t.Run("keeps the offset when requeueing fails", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			nacked := kafka.Message{Value: []byte("a"), Offset: 1}
			reader.On("FetchMessage", mock.Anything).Return(nacked, nil).Once()
			writer.On("WriteMessages", ctx, []kafka.Message{{Value: []byte("a")}}).Return(errors.New("broker down")).Once()

			b := backend.New(writer, reader, time.Second, logger)
			deliveries, err := b.Receive(ctx, 1)
			assert.Nil(t, err)
			assert.ErrorContains(t, deliveries[0].Nack(ctx), "broker down")
			reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
		})
	})
	t.Run("Close", func(t *testing.T) {
		t.Run("closes writer and reader", func(t *testing.T) {
			writer := new(mockWriter)
			defer writer.AssertExpectations(t)
			reader := new(mockReader)
			defer reader.AssertExpectations(t)

			writer.On("Close").Return(nil).Once()
			reader.On("Close").Return(errors.New("already closed")).Once()

			b := backend.New(writer, reader, time.Second, logger)
			assert.ErrorContains(t, b.Close(), "already closed")
			assert.Equal(t, "kafka", b.Name())
		})
	})
}

type mockWriter struct {
	mock.Mock
}

func (w *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := w.Called(ctx, msgs)
	return args.Error(0)
}

func (w *mockWriter) Close() error {
	return w.Called().Error(0)
}

type mockReader struct {
	mock.Mock
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := r.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (r *mockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := r.Called(ctx, msgs)
	return args.Error(0)
}

func (r *mockReader) Close() error {
	return r.Called().Error(0)
}
