// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/automute/internal/app"
	"github.com/relabs-tech/automute/internal/config"
)

func main() {
	configPath := flag.String("config", "automute_config.txt", "path to config file")
	flag.Parse()

	log.Println("starting automute daemon")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDaemon(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
