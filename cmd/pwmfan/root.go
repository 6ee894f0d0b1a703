package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pwmfan",
	Short: "Temperature driven PWM fan controller.",
	Long: `pwmfan reads a temperature sensor, smooths it and drives a PWM fan ` +
		`along an ease-in-out curve with hysteresis. An optional tachometer ` +
		`input reports the measured fan speed.`,
	SilenceErrors: false,
}

// Execute runs the selected subcommand.
func Execute() error {
	return rootCmd.Execute()
}
