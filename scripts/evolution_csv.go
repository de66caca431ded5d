package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/Agrid-Dev/redwire/internal/simulator"
)

type SetpointCommand struct {
	IterationNumber int
	Value           int
}

// SimulateHeater steps the device model once per simulated second and writes the
// ambient temperature next to the regulation thresholds.
func SimulateHeater(iterations int, filename string, setpointCommands []SetpointCommand) error {
	reg := simulator.RegulatorParams{
		HeatingRate:       0.01,
		TriggerHysteresis: 1.0,
		TargetHysteresis:  0.5,
	}
	heatLoss := simulator.HeatLossParams{
		Coefficient:        1.e-4,
		OutdoorTemperature: 10,
	}

	model, err := simulator.NewModel(18.0, reg, heatLoss)
	if err != nil {
		return fmt.Errorf("failed to create model: %v", err)
	}
	setpoint := 20

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Iteration", "Ambient", "Setpoint", "Heating", "TriggerLow", "TargetHigh"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for i := range iterations {
		for _, cmd := range setpointCommands {
			if cmd.IterationNumber == i+1 {
				setpoint = cmd.Value
				break
			}
		}

		ambient := model.Step(&setpoint, true, time.Second)

		if err := writer.Write([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", ambient),
			fmt.Sprintf("%d", setpoint),
			fmt.Sprintf("%t", model.Heating()),
			fmt.Sprintf("%.2f", float64(setpoint)-reg.TriggerHysteresis),
			fmt.Sprintf("%.2f", float64(setpoint)+reg.TargetHysteresis),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}
	}

	return nil
}

func main() {
	commands := []SetpointCommand{
		{
			IterationNumber: 600,
			Value:           22,
		},
	}
	if err := SimulateHeater(2000, "redwire.csv", commands); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
