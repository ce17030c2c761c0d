package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilBus(t *testing.T) {
	var b *Bus

	assert.Error(t, b.Publish(context.Background(), SubjectPolling, map[string]string{"session_id": "s"}))
	assert.Error(t, b.EnsureStream())
	assert.False(t, b.Connected())
	assert.ErrorIs(t, b.Ping(context.Background()), ErrDisconnected)
	assert.NotPanics(t, b.Close)

	_, err := b.Subscribe(context.Background(), SubjectResults, "d", func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New("nats://127.0.0.1:1")
	assert.Error(t, err)
}

type identified string

func (i identified) MessageID() string { return string(i) }

func TestPublishOptions(t *testing.T) {
	assert.Len(t, publishOptions(context.Background(), map[string]string{}), 1)
	assert.Len(t, publishOptions(context.Background(), identified("")), 1)
	assert.Len(t, publishOptions(context.Background(), identified("s1/polling")), 2)
}

func TestDisposition(t *testing.T) {
	boom := errors.New("db down")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ack"},
		{"transient", boom, "nak"},
		{"permanent", Permanent(boom), "term"},
		{"wrapped permanent", errors.Join(errors.New("ctx"), Permanent(boom)), "term"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, disposition(tt.err))
		})
	}
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	boom := errors.New("bad json")
	err := Permanent(boom)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, boom)
}
