package pwm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeChip(t *testing.T) *PWMPin {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pwmchip2", "pwm2"), 0755))

	oldRoot, oldSettle := SysfsRoot, exportSettle
	SysfsRoot, exportSettle = root, 0
	t.Cleanup(func() { SysfsRoot, exportSettle = oldRoot, oldSettle })

	return NewPin(2, 2)
}

func readFile(t *testing.T, p *PWMPin, name string) string {
	t.Helper()
	buf, err := os.ReadFile(filepath.Join(p.pinDir(), name))
	require.NoError(t, err)
	return string(buf)
}

func TestPinSetup(t *testing.T) {
	p := fakeChip(t)

	require.NoError(t, p.Export())
	buf, err := os.ReadFile(filepath.Join(p.chipPath, "export"))
	require.NoError(t, err)
	require.Equal(t, "2", string(buf))

	require.NoError(t, p.SetFrequency(2500))
	require.Equal(t, "400000", readFile(t, p, "period"))

	require.NoError(t, p.Enable(true))
	require.Equal(t, "1", readFile(t, p, "enable"))
}

func TestEnableRetriesAfterFailedWrite(t *testing.T) {
	p := fakeChip(t)
	require.NoError(t, os.RemoveAll(p.pinDir()))

	require.Error(t, p.Enable(true))
	require.False(t, p.enabled)

	require.NoError(t, os.MkdirAll(p.pinDir(), 0755))
	require.NoError(t, p.Enable(true))
	require.Equal(t, "1", readFile(t, p, "enable"))

	require.NoError(t, p.Enable(false))
	require.Equal(t, "0", readFile(t, p, "enable"))
}

func TestSetDutyCyclePercent(t *testing.T) {
	p := fakeChip(t)
	require.NoError(t, p.SetFrequency(2500))

	require.NoError(t, p.SetDutyCyclePercent(20))
	require.Equal(t, "80000", readFile(t, p, "duty_cycle"))

	require.NoError(t, p.SetDutyCyclePercent(100))
	require.Equal(t, "400000", readFile(t, p, "duty_cycle"))

	require.ErrorIs(t, p.SetDutyCyclePercent(101), ErrDutyOutOfRange)
}

func TestSetDutyCycleOutOfRange(t *testing.T) {
	p := fakeChip(t)
	require.NoError(t, p.SetFrequency(1000))

	// 1 kHz puts 100% at 1ms, beyond the accepted window
	require.ErrorIs(t, p.SetDutyCyclePercent(100), ErrDutyOutOfRange)
	require.NoError(t, p.SetDutyCyclePercent(80))
}

func TestGetPeriodFromSysfs(t *testing.T) {
	p := fakeChip(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.pinDir(), "period"), []byte("40000\n"), 0644))

	period, err := p.GetPeriod()
	require.NoError(t, err)
	require.Equal(t, uint32(40000), period)
}
