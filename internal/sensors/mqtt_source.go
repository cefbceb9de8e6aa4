package sensors

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topics maps each reading kind to the MQTT topic the host publishes it
// on. Empty topics are not subscribed.
type Topics struct {
	Proximity    string
	Light        string
	Acceleration string
}

// scalarPayload is the JSON published for proximity and light:
// {"ts": 123456789, "value": 0.5}
type scalarPayload struct {
	Timestamp int64    `json:"ts"`
	Value     *float64 `json:"value"`
}

// vectorPayload is the JSON published for acceleration:
// {"ts": 123456789, "x": 0.1, "y": -9.7, "z": 0.8}
type vectorPayload struct {
	Timestamp int64    `json:"ts"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
}

// DecodePayload turns an MQTT payload into a Reading of the given kind.
func DecodePayload(kind Kind, payload []byte) (Reading, error) {
	switch kind {
	case KindProximity, KindLight:
		var p scalarPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Reading{}, fmt.Errorf("%s payload: %w", kind, err)
		}
		if p.Value == nil {
			return Reading{}, fmt.Errorf("%s payload: missing value", kind)
		}
		if kind == KindProximity {
			return Proximity(p.Timestamp, *p.Value), nil
		}
		return Light(p.Timestamp, *p.Value), nil

	case KindAcceleration:
		var p vectorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Reading{}, fmt.Errorf("%s payload: %w", kind, err)
		}
		if p.X == nil || p.Y == nil || p.Z == nil {
			return Reading{}, fmt.Errorf("%s payload: missing axis", kind)
		}
		return Acceleration(p.Timestamp, *p.X, *p.Y, *p.Z), nil

	default:
		return Reading{}, fmt.Errorf("unsupported reading kind %s", kind)
	}
}

// EncodePayload is the inverse of DecodePayload.
func EncodePayload(r Reading) ([]byte, error) {
	switch r.Kind {
	case KindProximity:
		return json.Marshal(scalarPayload{Timestamp: r.Timestamp, Value: &r.Distance})
	case KindLight:
		return json.Marshal(scalarPayload{Timestamp: r.Timestamp, Value: &r.Lux})
	case KindAcceleration:
		return json.Marshal(vectorPayload{Timestamp: r.Timestamp, X: &r.X, Y: &r.Y, Z: &r.Z})
	default:
		return nil, fmt.Errorf("unsupported reading kind %s", r.Kind)
	}
}

// For returns the topic readings of kind k are published on.
func (t Topics) For(k Kind) string {
	switch k {
	case KindProximity:
		return t.Proximity
	case KindLight:
		return t.Light
	case KindAcceleration:
		return t.Acceleration
	default:
		return ""
	}
}

// MQTTSource subscribes to sensor topics on an already connected client.
type MQTTSource struct {
	client mqtt.Client
	topics Topics

	mu         sync.Mutex
	subscribed []string
}

// NewMQTTSource wraps a connected client.
func NewMQTTSource(client mqtt.Client, topics Topics) *MQTTSource {
	return &MQTTSource{client: client, topics: topics}
}

// Subscribe registers one MQTT subscription per configured topic.
func (s *MQTTSource) Subscribe(handler func(Reading)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subscribed) > 0 {
		return nil
	}

	for _, sub := range []struct {
		kind  Kind
		topic string
	}{
		{KindProximity, s.topics.Proximity},
		{KindLight, s.topics.Light},
		{KindAcceleration, s.topics.Acceleration},
	} {
		if sub.topic == "" {
			continue
		}
		kind := sub.kind
		token := s.client.Subscribe(sub.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			r, err := DecodePayload(kind, msg.Payload())
			if err != nil {
				log.Printf("mqtt source: %s: %v", msg.Topic(), err)
				return
			}
			handler(r)
		})
		token.Wait()
		if token.Error() != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("mqtt source: subscribe %s: %w", sub.topic, token.Error())
		}
		s.subscribed = append(s.subscribed, sub.topic)
		log.Printf("mqtt source: subscribed to %s (%s)", sub.topic, kind)
	}
	return nil
}

// Unsubscribe drops all sensor subscriptions.
func (s *MQTTSource) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribeLocked()
}

func (s *MQTTSource) unsubscribeLocked() error {
	if len(s.subscribed) == 0 {
		return nil
	}
	topics := s.subscribed
	s.subscribed = nil

	token := s.client.Unsubscribe(topics...)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt source: unsubscribe: %w", token.Error())
	}
	log.Printf("mqtt source: unsubscribed from %v", topics)
	return nil
}
