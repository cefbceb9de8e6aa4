package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/automute/internal/sensors"
)

func TestRunProducerRejectsBadInput(t *testing.T) {
	emit := func(sensors.Reading) error { return nil }
	readings := []sensors.Reading{sensors.Light(0, 5)}

	assert.ErrorContains(t, RunProducer(context.Background(), emit, nil, time.Millisecond), "no readings")
	assert.ErrorContains(t, RunProducer(context.Background(), emit, readings, 0), "pace must be positive")
	assert.ErrorContains(t, RunProducer(context.Background(), emit, readings, -time.Second), "pace must be positive")
}

func TestRunProducerLoopsWithIncreasingTimestamps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []sensors.Reading
	emit := func(r sensors.Reading) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
		if len(got) == 5 {
			cancel()
		}
		if len(got) == 2 {
			return errors.New("broker away")
		}
		return nil
	}
	readings := []sensors.Reading{sensors.Light(0, 5), sensors.Light(10, 6)}
	require.NoError(t, RunProducer(ctx, emit, readings, time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(got), 5)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
	}
}

func TestSentenceEmitterFeedsSerialReader(t *testing.T) {
	var buf bytes.Buffer
	emit := SentenceEmitter(&buf)
	want := []sensors.Reading{
		sensors.Proximity(1, 0.2),
		sensors.Light(2, 4),
		sensors.Acceleration(3, 0, -0.8, 0.07),
	}
	for _, r := range want {
		require.NoError(t, emit(r))
	}
	assert.True(t, strings.HasSuffix(buf.String(), "\r\n"))

	var got []sensors.Reading
	require.NoError(t, sensors.ReadSentences(&buf, func(r sensors.Reading) { got = append(got, r) }))
	assert.Equal(t, want, got)
}

func TestMQTTEmitter(t *testing.T) {
	client := newRouterClient(t)
	topics := sensors.Topics{Light: "s/light"}
	emit := MQTTEmitter(client, topics)

	require.NoError(t, emit(sensors.Light(7, 3.5)))
	require.NoError(t, emit(sensors.Proximity(8, 0)), "kinds without a topic are skipped")

	sentLight := client.sentTo("s/light")
	require.Len(t, sentLight, 1)
	r, err := sensors.DecodePayload(sensors.KindLight, []byte(sentLight[0]))
	require.NoError(t, err)
	assert.Equal(t, sensors.Light(7, 3.5), r)
}
