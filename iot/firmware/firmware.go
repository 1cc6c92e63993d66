/*Package firmware provides the firmware catalog collaborator

A catalog answers one question: what is the newest firmware available for a
device type. Versions are ordered by semantic versioning. The bootstrap
service combines the answer with the device's own version and constraints to
make the OTA decision.
*/
package firmware

import (
	"context"
)

// Constraints are the conditions a device must satisfy before it may take
// an update. A force rollout bypasses these, but never the version ordering.
type Constraints struct {
	// MinBatteryPercent is the minimum battery level, 0 means no requirement.
	MinBatteryPercent int `json:"minBatteryPercent,omitempty"`
	// Networks lists the permitted network kinds, e.g. "wifi", "ethernet".
	// Empty means any network.
	Networks []string `json:"networks,omitempty"`
	// Window restricts installation to a daily time window.
	Window *TimeWindow `json:"window,omitempty"`
}

// TimeWindow is a daily window in the device's local time. StartHour may be
// larger than EndHour for windows crossing midnight.
type TimeWindow struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
}

// Descriptor describes one downloadable firmware image.
type Descriptor struct {
	DeviceType  string      `json:"deviceType"`
	Version     string      `json:"version"`
	URL         string      `json:"url"`
	Size        int64       `json:"size"`
	Checksum    string      `json:"checksum"`
	Force       bool        `json:"force,omitempty"`
	Constraints Constraints `json:"constraints,omitempty"`
}

// Catalog is the narrow collaborator interface for firmware lookup.
type Catalog interface {
	// LatestFor returns the newest firmware for the device type, or nil
	// when none is published.
	LatestFor(ctx context.Context, deviceType string) (*Descriptor, error)
}
