// Package system describes the board the controller runs on.
package system

import (
	"bytes"
	"os"
	"sync"

	"github.com/shirou/gopsutil/host"

	"pwmfan/log"
)

// ModelFile holds the board model on device tree platforms such as the
// Raspberry Pi and Rockchip boards.
var ModelFile = "/proc/device-tree/model"

// SystemInformation identifies the host and board.
type SystemInformation struct {
	Hostname        string `json:"hostname"`
	BoardModel      string `json:"board_model,omitempty"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	KernelArch      string `json:"kernel_arch"`
	BootTime        uint64 `json:"boot_time"`
}

var (
	cacheMu       sync.Mutex
	cachedSysinfo *SystemInformation
)

// the host information source, replaced in tests
var hostInfo = host.Info

func boardModel() string {
	buf, err := os.ReadFile(ModelFile)
	if err != nil {
		return ""
	}
	// device tree strings are NUL terminated
	return string(bytes.TrimRight(bytes.TrimSpace(buf), "\x00"))
}

// GetSystemInfo returns the host identifiers. The first successful lookup is
// cached for the life of the process.
func GetSystemInfo() (SystemInformation, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cachedSysinfo != nil {
		return *cachedSysinfo, nil
	}

	info, err := hostInfo()
	if err != nil {
		log.Errorf("Failed to read host information: %v", err)
		return SystemInformation{}, err
	}

	sysInfo := SystemInformation{
		Hostname:        info.Hostname,
		BoardModel:      boardModel(),
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		BootTime:        info.BootTime,
	}
	log.Debugf("sysInfo: %+v", sysInfo)

	cachedSysinfo = &sysInfo
	return sysInfo, nil
}

func resetCache() {
	cacheMu.Lock()
	cachedSysinfo = nil
	cacheMu.Unlock()
}
