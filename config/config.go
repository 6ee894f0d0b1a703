package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pwmfan/device/pwm"
	log "pwmfan/log"
)

const (
	EnvPrefix = "PWM_FAN_"

	// DefaultThermalZone holds the SoC temperature in millidegrees Celsius.
	DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"
)

// Temperature source kinds.
const (
	SourceThermal    = "thermal"
	SourceLM75       = "lm75"
	SourceHostSensor = "hostsensor"
)

// Tachometer edge backends.
const (
	TachBackendGpiod  = "gpiod"
	TachBackendPeriph = "periph"
	TachBackendSysfs  = "sysfs"
)

// Hysteresis policies for the lower threshold.
const (
	// PolicyOn always compares against MinOnTemp.
	PolicyOn = "on"
	// PolicyWiden compares against MinOffTemp while the fan is running.
	PolicyWiden = "widen"
)

// Config is immutable for the lifetime of a controller run.
type Config struct {
	// PWM output
	PWMChip      int `yaml:"pwm_chip"`
	PWMChannel   int `yaml:"pwm_channel"`
	PWMFreqHz    int `yaml:"pwm_freq_hz"`
	MinDutyCycle int `yaml:"min_duty_cycle"`
	MaxDutyCycle int `yaml:"max_duty_cycle"`

	// Thresholds in degrees Celsius.
	MinOffTemp float64 `yaml:"min_off_temp_c"`
	MinOnTemp  float64 `yaml:"min_on_temp_c"`
	MaxTemp    float64 `yaml:"max_temp_c"`

	FanOffGrace      time.Duration `yaml:"fan_off_grace"`
	HysteresisPolicy string        `yaml:"hysteresis_policy"`

	TickInterval time.Duration `yaml:"tick_interval"`
	BlipDuration time.Duration `yaml:"blip_duration"`

	// Temperature source
	TempSource    string `yaml:"temp_source"`
	ThermalZone   string `yaml:"thermal_zone"`
	I2CBus        string `yaml:"i2c_bus"`
	I2CAddr       uint16 `yaml:"i2c_addr"`
	HostSensorKey string `yaml:"host_sensor_key"`

	// Tachometer, disabled when TachPin is 0.
	TachPin              int           `yaml:"tach_pin"`
	TachBackend          string        `yaml:"tach_backend"`
	TachChip             string        `yaml:"tach_chip"`
	TachPulsesPerRev     int           `yaml:"tach_pulses_per_rev"`
	TachMinPulseInterval time.Duration `yaml:"tach_min_pulse_interval"`
	TachPollTimeout      time.Duration `yaml:"tach_poll_timeout"`
	RPMStallTimeout      time.Duration `yaml:"rpm_stall_timeout"`
	TachDrainOnRead      bool          `yaml:"tach_drain_on_read"`
	AlarmMinRPM          int           `yaml:"alarm_min_rpm"`

	// Telemetry and API
	CSVPath     string `yaml:"csv_path"`
	SQLitePath  string `yaml:"sqlite_path"`
	HTTPAddr    string `yaml:"http_addr"`
	APIAddr     string `yaml:"api_addr"`
	LogTicks    bool   `yaml:"log_ticks"`
	MetricsName string `yaml:"metrics_namespace"`
}

func Default() *Config {
	return &Config{
		PWMChip:      2,
		PWMChannel:   2,
		PWMFreqHz:    2500,
		MinDutyCycle: 20,
		MaxDutyCycle: 100,

		MinOffTemp: 38,
		MinOnTemp:  40,
		MaxTemp:    46,

		FanOffGrace:      60 * time.Second,
		HysteresisPolicy: PolicyOn,

		TickInterval: 250 * time.Millisecond,
		BlipDuration: 2 * time.Second,

		TempSource:  SourceThermal,
		ThermalZone: DefaultThermalZone,
		I2CBus:      "/dev/i2c-1",
		I2CAddr:     0x48,

		TachBackend:          TachBackendGpiod,
		TachChip:             "gpiochip0",
		TachPulsesPerRev:     2,
		TachMinPulseInterval: 2 * time.Millisecond,
		TachPollTimeout:      100 * time.Millisecond,
		RPMStallTimeout:      time.Second,
		TachDrainOnRead:      true,

		MetricsName: "pwmfan",
	}
}

// TachEnabled reports whether a tachometer input is configured.
func (c *Config) TachEnabled() bool {
	return c.TachPin > 0
}

// Load builds a configuration from the defaults, an optional YAML file, an
// optional dotenv file and finally the PWM_FAN_* environment.
func Load(path string, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from PWM_FAN_* variables. Durations suffixed _MS
// are integer milliseconds.
func (c *Config) ApplyEnv(lookup lookupFunc) error {
	var errs []error

	intVar := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	floatVar := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	msVar := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = time.Duration(n) * time.Millisecond
		}
	}
	boolVar := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	strVar := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	intVar("PWM_CHIP", &c.PWMChip)
	intVar("PWM_CHANNEL", &c.PWMChannel)
	intVar("PWM_FREQ_HZ", &c.PWMFreqHz)
	intVar("MIN_DUTY_CYCLE", &c.MinDutyCycle)
	intVar("MAX_DUTY_CYCLE", &c.MaxDutyCycle)
	floatVar("MIN_OFF_TEMP_C", &c.MinOffTemp)
	floatVar("MIN_ON_TEMP_C", &c.MinOnTemp)
	floatVar("MAX_TEMP_C", &c.MaxTemp)
	msVar("FAN_OFF_GRACE_MS", &c.FanOffGrace)
	msVar("SLEEP_MS", &c.TickInterval)
	msVar("BLIP_MS", &c.BlipDuration)
	strVar("HYSTERESIS_POLICY", &c.HysteresisPolicy)
	strVar("TEMP_SOURCE", &c.TempSource)
	strVar("THERMAL_ZONE", &c.ThermalZone)
	intVar("TACH_PIN", &c.TachPin)
	strVar("TACH_BACKEND", &c.TachBackend)
	intVar("TACH_PULSE_PER_REV", &c.TachPulsesPerRev)
	msVar("TACH_MIN_TIME_DELTA_MS", &c.TachMinPulseInterval)
	msVar("RPM_STALL_TIMEOUT_MS", &c.RPMStallTimeout)
	strVar("TACH_CHIP", &c.TachChip)
	boolVar("TACH_DRAIN_ON_READ", &c.TachDrainOnRead)
	intVar("ALARM_MIN_RPM", &c.AlarmMinRPM)
	strVar("I2C_BUS", &c.I2CBus)
	strVar("HOST_SENSOR_KEY", &c.HostSensorKey)
	strVar("CSV_PATH", &c.CSVPath)
	strVar("SQLITE_PATH", &c.SQLitePath)
	strVar("HTTP_ADDR", &c.HTTPAddr)
	strVar("API_ADDR", &c.APIAddr)
	boolVar("LOG_TICKS", &c.LogTicks)

	return errors.Join(errs...)
}

// Validate checks the invariants the controller relies on.
func (c *Config) Validate() error {
	var errs []error

	if c.MinDutyCycle < 0 || c.MinDutyCycle > 100 {
		errs = append(errs, fmt.Errorf("min duty cycle %d is outside 0..100", c.MinDutyCycle))
	}
	if c.MaxDutyCycle < 0 || c.MaxDutyCycle > 100 {
		errs = append(errs, fmt.Errorf("max duty cycle %d is outside 0..100", c.MaxDutyCycle))
	}
	if c.MinDutyCycle > c.MaxDutyCycle {
		errs = append(errs, fmt.Errorf("min duty cycle %d exceeds max duty cycle %d", c.MinDutyCycle, c.MaxDutyCycle))
	}
	if c.MinOffTemp > c.MinOnTemp {
		errs = append(errs, fmt.Errorf("min off temp %.2f exceeds min on temp %.2f", c.MinOffTemp, c.MinOnTemp))
	}
	if c.MinOnTemp >= c.MaxTemp {
		errs = append(errs, fmt.Errorf("min on temp %.2f must be below max temp %.2f", c.MinOnTemp, c.MaxTemp))
	}
	if c.PWMFreqHz <= 0 {
		errs = append(errs, fmt.Errorf("pwm frequency %d must be positive", c.PWMFreqHz))
	} else if c.MaxDutyCycle > 0 && c.MaxDutyCycle <= 100 {
		// The fail-safe write must fit under the channel's duty guard.
		period := uint64(1000000000 / c.PWMFreqHz)
		if maxNs := period * uint64(c.MaxDutyCycle) / 100; maxNs > pwm.DutyCycleNsOOBHigh {
			errs = append(errs, fmt.Errorf("pwm frequency %d Hz puts max duty cycle %d%% at %dns, above the %dns limit",
				c.PWMFreqHz, c.MaxDutyCycle, maxNs, pwm.DutyCycleNsOOBHigh))
		}
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval %v must be positive", c.TickInterval))
	}
	if c.FanOffGrace < 0 {
		errs = append(errs, fmt.Errorf("fan off grace %v must not be negative", c.FanOffGrace))
	}

	switch c.HysteresisPolicy {
	case PolicyOn, PolicyWiden:
	default:
		errs = append(errs, fmt.Errorf("unknown hysteresis policy %q", c.HysteresisPolicy))
	}

	switch c.TempSource {
	case SourceThermal, SourceLM75, SourceHostSensor:
	default:
		errs = append(errs, fmt.Errorf("unknown temperature source %q", c.TempSource))
	}

	if c.TachEnabled() {
		switch c.TachBackend {
		case TachBackendGpiod, TachBackendPeriph, TachBackendSysfs:
		default:
			errs = append(errs, fmt.Errorf("unknown tachometer backend %q", c.TachBackend))
		}
		if c.TachPulsesPerRev <= 0 {
			errs = append(errs, fmt.Errorf("tachometer pulses per revolution %d must be positive", c.TachPulsesPerRev))
		}
		if c.TachPollTimeout <= 0 {
			errs = append(errs, fmt.Errorf("tachometer poll timeout %v must be positive", c.TachPollTimeout))
		}
		if c.RPMStallTimeout <= 0 {
			errs = append(errs, fmt.Errorf("rpm stall timeout %v must be positive", c.RPMStallTimeout))
		}
	}

	return errors.Join(errs...)
}

// Dump writes the effective configuration to the debug log.
func (c *Config) Dump() {
	log.Debugf("Config:")
	log.Debugf(" - PWM chip/channel  = %d/%d", c.PWMChip, c.PWMChannel)
	log.Debugf(" - PWM_FREQ_HZ       = %d", c.PWMFreqHz)
	log.Debugf(" - MIN_DUTY_CYCLE    = %d", c.MinDutyCycle)
	log.Debugf(" - MAX_DUTY_CYCLE    = %d", c.MaxDutyCycle)
	log.Debugf(" - MIN_OFF_TEMP_C    = %.2f", c.MinOffTemp)
	log.Debugf(" - MIN_ON_TEMP_C     = %.2f", c.MinOnTemp)
	log.Debugf(" - MAX_TEMP_C        = %.2f", c.MaxTemp)
	log.Debugf(" - FAN_OFF_GRACE     = %v", c.FanOffGrace)
	log.Debugf(" - SLEEP             = %v", c.TickInterval)
	log.Debugf(" - hysteresis policy = %s", c.HysteresisPolicy)
	log.Debugf(" - temp source       = %s", c.TempSource)
	if c.TachEnabled() {
		log.Debugf(" - tach pin/backend  = %d/%s, %d pulses/rev", c.TachPin, c.TachBackend, c.TachPulsesPerRev)
	}
}
