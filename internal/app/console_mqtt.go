package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/automute/internal/config"
	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
)

// FormatEvaluation renders one evaluation as a console line.
func FormatEvaluation(ev engine.Evaluation) string {
	var b strings.Builder
	if ev.Changed {
		b.WriteString("[RING*] ")
	} else {
		b.WriteString("[EVAL ] ")
	}
	fmt.Fprintf(&b, "session=%.8s trigger=%-12s classifier=%s enclosed=%-5t veto=%s %s -> %s",
		ev.SessionID, ev.Trigger, ev.Classifier, ev.Enclosed, ev.Veto, ev.From, ev.To)
	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%q", ev.Error)
	}
	return b.String()
}

// FormatGuard renders a guard snapshot as a console line.
func FormatGuard(s guard.State) string {
	return fmt.Sprintf("[GUARD] dnd_off=%t display=%t call=%t -> veto=%s",
		s.InterruptionFilterAllowsAll, s.DisplayInteractive, s.CallActive, guard.Check(s))
}

// RunConsoleMQTT prints evaluations and host traffic until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	subs := map[string]func([]byte) (string, error){
		cfg.TopicEvaluations: func(b []byte) (string, error) {
			var ev engine.Evaluation
			if err := json.Unmarshal(b, &ev); err != nil {
				return "", err
			}
			return FormatEvaluation(ev), nil
		},
		cfg.TopicGuard: func(b []byte) (string, error) {
			var s guard.State
			if err := json.Unmarshal(b, &s); err != nil {
				return "", err
			}
			return FormatGuard(s), nil
		},
		cfg.TopicRingerSet:   raw("[SET  ]"),
		cfg.TopicRingerState: raw("[STATE]"),
		cfg.TopicDisplay:     raw("[DISP ]"),
		cfg.TopicCommand:     raw("[CMD  ]"),
	}

	for topic, format := range subs {
		if topic == "" {
			continue
		}
		format := format
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := format(msg.Payload())
			if err != nil {
				log.Printf("console: %s unmarshal error: %v", msg.Topic(), err)
				return
			}
			fmt.Println(line)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func raw(prefix string) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		return prefix + " " + strings.TrimSpace(string(b)), nil
	}
}
