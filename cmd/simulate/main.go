package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/automute/internal/app"
	"github.com/relabs-tech/automute/internal/classifier"
	"github.com/relabs-tech/automute/internal/config"
	"github.com/relabs-tech/automute/internal/engine"
	"github.com/relabs-tech/automute/internal/guard"
	"github.com/relabs-tech/automute/internal/sensors"
)

func main() {
	configPath := flag.String("config", "", "optional config file for detection settings")
	step := flag.Duration("step", 100*time.Millisecond, "time between samples")
	phaseLen := flag.Int("phase", 20, "samples per table/pocket phase")
	phases := flag.Int("phases", 6, "number of phases")
	dnd := flag.Bool("dnd", false, "simulate Do Not Disturb")
	call := flag.Bool("call", false, "simulate an active call")
	flag.Parse()

	settings := engine.DefaultSettings()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		settings = cfg.EngineSettings()
	}
	if settings.Classifier != classifier.LightTilt {
		log.Fatalf("simulation replays light and acceleration only; classifier %s is not supported", settings.Classifier)
	}

	readings := sensors.PocketCycle(*step, *phaseLen, *phases)
	host := guard.State{InterruptionFilterAllowsAll: !*dnd, CallActive: *call}

	if _, err := app.RunSimulation(settings, readings, host, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
