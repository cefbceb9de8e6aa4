package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/automute/internal/app"
	"github.com/relabs-tech/automute/internal/config"
	"github.com/relabs-tech/automute/internal/sensors"
)

func main() {
	configPath := flag.String("config", "automute_config.txt", "path to config file")
	pace := flag.Duration("pace", 50*time.Millisecond, "time between emitted readings")
	serialPort := flag.String("serial", "", "write $PSENS sentences to this serial port instead of publishing to MQTT")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	var emit app.Emitter
	if *serialPort != "" {
		log.Printf("starting automute serial producer (mock) on %s", *serialPort)
		port, err := serial.Open(sensors.SerialOptions(*serialPort, uint(cfg.SerialBaudRate)))
		if err != nil {
			log.Fatalf("serial open error: %v", err)
		}
		defer port.Close()
		emit = app.SentenceEmitter(port)
	} else {
		log.Println("starting automute MQTT producer (mock)")
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientID + "-producer")

		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Fatalf("MQTT connect error: %v", token.Error())
		}
		defer client.Disconnect(250)
		emit = app.MQTTEmitter(client, app.SensorTopics(cfg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readings := sensors.PocketCycle(2*(*pace), 40, 2)
	if err := app.RunProducer(ctx, emit, readings, *pace); err != nil {
		log.Printf("producer: %v", err)
	}
}
