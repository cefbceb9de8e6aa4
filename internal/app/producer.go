package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/automute/internal/sensors"
)

// Emitter hands one reading to whatever feeds the daemon.
type Emitter func(sensors.Reading) error

// MQTTEmitter publishes each reading as JSON on its sensor topic. Kinds
// without a topic are skipped.
func MQTTEmitter(client mqtt.Client, topics sensors.Topics) Emitter {
	return func(r sensors.Reading) error {
		topic := topics.For(r.Kind)
		if topic == "" {
			return nil
		}
		payload, err := sensors.EncodePayload(r)
		if err != nil {
			return err
		}
		token := client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("publish %s: %w", topic, token.Error())
		}
		return nil
	}
}

// SentenceEmitter writes each reading as a $PSENS line, the way the
// microcontroller bridge does on its serial port.
func SentenceEmitter(w io.Writer) Emitter {
	return func(r sensors.Reading) error {
		_, err := io.WriteString(w, sensors.FormatSentence(r)+"\r\n")
		return err
	}
}

// RunProducer emits readings one every pace, looping until ctx is
// cancelled. It stands in for the phone's sensor feed when testing a
// daemon against a real broker or serial link.
func RunProducer(ctx context.Context, emit Emitter, readings []sensors.Reading, pace time.Duration) error {
	if len(readings) == 0 {
		return fmt.Errorf("producer: no readings to publish")
	}
	if pace <= 0 {
		return fmt.Errorf("producer: pace must be positive, got %s", pace)
	}

	ticker := time.NewTicker(pace)
	defer ticker.Stop()

	// Timestamps keep increasing across loops so the debounce gate never
	// sees time go backwards.
	var offset int64
	span := readings[len(readings)-1].Timestamp + int64(pace)

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if i == len(readings) {
			i = 0
			offset += span
		}
		r := readings[i]
		r.Timestamp += offset

		if err := emit(r); err != nil {
			log.Printf("producer: %v", err)
		}
	}
}
