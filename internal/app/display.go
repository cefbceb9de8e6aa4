package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// StatusLines formats st for the 128x64 panel.
func StatusLines(st Status) []string {
	lines := make([]string, 0, 4)
	if st.Enabled {
		lines = append(lines, "AUTOMUTE  ON")
	} else {
		lines = append(lines, "AUTOMUTE  OFF")
	}

	if !st.Engine.Running {
		lines = append(lines, "Sensing: idle")
		return lines
	}

	mode := st.Engine.Mode.String()
	if st.Engine.Stale {
		mode += "?"
	}
	lines = append(lines,
		fmt.Sprintf("%s %s", st.Engine.Classifier, mode),
		fmt.Sprintf("Veto: %s", shortVeto(st.Veto)),
		fmt.Sprintf("Ev:%d Tr:%d", st.Engine.Stats.Evaluations, st.Engine.Stats.Transitions),
	)
	return lines
}

func shortVeto(v string) string {
	switch v {
	case "interruption_filter":
		return "dnd"
	case "display_interactive":
		return "screen"
	case "call_active":
		return "call"
	case "":
		return "none"
	default:
		return v
	}
}

// RenderStatus draws st into a 128x64 one-bit image.
func RenderStatus(st Status) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range StatusLines(st) {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

// RunDisplay refreshes an SSD1306 on the given I2C bus until ctx is
// cancelled.
func RunDisplay(ctx context.Context, busName string, interval time.Duration, status StatusFunc) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized on bus %q", busName)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		st := status()
		lines := StatusLines(st)
		if equalLines(lines, last) {
			continue
		}
		last = lines
		if err := dev.Draw(dev.Bounds(), RenderStatus(st), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
