package topics

import "strings"

// supported device type variants, in the order they are reported
// by SupportedDeviceTypes
var supportedDeviceTypes = []string{
	"ps-ctrl",
	"dtu",
	"rtu",
	"ftu",
	"sensor",
	"gateway",
}

// DeviceType is a device type variant from the closed taxonomy. Unknown
// types are accepted and tagged as custom, the raw normalized name is
// carried verbatim into generated topics.
type DeviceType struct {
	Name   string
	Custom bool
}

// ParseDeviceType normalizes raw and looks it up in the taxonomy.
func ParseDeviceType(raw string) DeviceType {
	name := strings.ToLower(strings.TrimSpace(raw))
	return DeviceType{
		Name:   name,
		Custom: !IsDeviceTypeSupported(name),
	}
}

// SupportedDeviceTypes returns the fixed set of known device types.
func SupportedDeviceTypes() []string {
	types := make([]string, len(supportedDeviceTypes))
	copy(types, supportedDeviceTypes)
	return types
}

// IsDeviceTypeSupported is a membership test against the closed taxonomy.
// Topic generation still succeeds for unsupported types, see ParseDeviceType.
func IsDeviceTypeSupported(deviceType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(deviceType))
	for _, t := range supportedDeviceTypes {
		if t == normalized {
			return true
		}
	}
	return false
}
