// Command statpanel shows host health on an ST7735S TFT attached over I²C and
// powers the host off when the panel's button is held.
//
// Hardware Setup:
//
// Connect the display and button to a Raspberry Pi class board:
//
//	Display    Board
//	GND        GND
//	VCC        3.3V
//	SCL        GPIO3 (I2C1 SCL)
//	SDA        GPIO2 (I2C1 SDA)
//
//	Button     GPIO4 to GND (internal pull-up, active low)
//
// Configuration comes from the YAML file named by STATPANEL_CONFIG, if set,
// and STATPANEL_* environment variables such as STATPANEL_BUS_NAME=1 or
// STATPANEL_TELEMETRY_SHOW_IP=true.
package main

import (
	"context"
	"log"
	"os"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/flavioheleno/statpanel/internal/agent"
	"github.com/flavioheleno/statpanel/internal/config"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := agent.BuildLogger(cfg)

	// Initialize periph.io
	state, err := host.Init()
	if err != nil {
		logger.Error("failed to initialize periph.io", "error", err)
		os.Exit(1)
	}
	for _, f := range state.Failed {
		logger.Debug("host driver failed", "driver", f.D.String(), "error", f.Err)
	}

	// Open I²C bus
	bus, err := i2creg.Open(cfg.Bus.Name)
	if err != nil {
		logger.Error("failed to open I²C bus", "bus", cfg.Bus.Name, "error", err)
		os.Exit(1)
	}

	// Get button GPIO pin
	pin := gpioreg.ByName(cfg.Button.Pin)
	if pin == nil {
		logger.Error("GPIO pin not found", "pin", cfg.Button.Pin)
		agent.CloseBus(bus, logger)
		os.Exit(1)
	}

	a, err := agent.New(cfg, logger, agent.Deps{Bus: bus, Button: pin})
	if err != nil {
		logger.Error("statpanel initialization failed", "error", err)
		os.Exit(1)
	}

	os.Exit(agent.ExitCode(a.Run(context.Background())))
}
