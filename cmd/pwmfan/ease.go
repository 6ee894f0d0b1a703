package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pwmfan/config"
	"pwmfan/control"
)

var easeOpts struct {
	configPath string
	envFile    string
	temp       float64
	step       float64
}

var easeCmd = &cobra.Command{
	Use:   "ease",
	Short: "Print the duty cycle the curve gives for a temperature",
	Long: `Without --temp the whole curve between min_off_temp_c and max_temp_c ` +
		`is printed in --step increments. Nothing is written to the hardware.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.Load(easeOpts.configPath, easeOpts.envFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		duty := func(t float64) int {
			return control.QuarticEase(t, cfg.MinOffTemp, cfg.MaxTemp, cfg.MinDutyCycle, cfg.MaxDutyCycle)
		}

		w := cmd.OutOrStdout()
		if cmd.Flags().Changed("temp") {
			fmt.Fprintln(w, duty(easeOpts.temp))
			return nil
		}

		if easeOpts.step <= 0 {
			return fmt.Errorf("step %v must be positive", easeOpts.step)
		}
		for t := cfg.MinOffTemp; t <= cfg.MaxTemp+1e-9; t += easeOpts.step {
			fmt.Fprintf(w, "%6.2f %3d\n", t, duty(t))
		}
		return nil
	},
}

func init() {
	f := easeCmd.Flags()
	f.StringVarP(&easeOpts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&easeOpts.envFile, "env-file", "", "dotenv file with PWM_FAN_* variables")
	f.Float64VarP(&easeOpts.temp, "temp", "t", 0, "temperature in degrees Celsius")
	f.Float64Var(&easeOpts.step, "step", 1, "temperature step for the curve table")

	rootCmd.AddCommand(easeCmd)
}
