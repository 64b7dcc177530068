package sysinfoservice

import (
	"runtime"

	"matchable.io/sdk/v1/action"
)

// Mirrors the device types a game engine reports
const (
	Desktop  = "Desktop"
	Handheld = "Handheld"
	Unknown  = "Unknown"
)

// a lightweight interface around the device the game is running on
type SystemInfoService interface {
	DeviceModel() string
	DeviceType() string
	OperatingSystem() string
}

// the default implementation
type OsSystemInfoService struct{}

func (OsSystemInfoService) DeviceType() string {
	return deviceType(runtime.GOOS)
}

func (s OsSystemInfoService) DeviceModel() string {
	return deviceModel()
}

func (s OsSystemInfoService) OperatingSystem() string {
	return operatingSystem()
}

// Collect reads everything start_session reports, an empty device type is sent as Unknown
func Collect(s SystemInfoService) action.SystemInfo {
	info := action.SystemInfo{
		DeviceModel:     s.DeviceModel(),
		DeviceType:      s.DeviceType(),
		OperatingSystem: s.OperatingSystem(),
	}
	if info.DeviceType == "" {
		info.DeviceType = Unknown
	}
	return info
}

func deviceType(goos string) string {
	switch goos {
	case "android", "ios":
		return Handheld
	case "js", "wasip1":
		return Unknown
	default:
		return Desktop
	}
}
