package bootstrap

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/provisio/iot/firmware"
)

// decideOta makes the update verdict for one device.
//
// An update is available only if the candidate's version is strictly newer
// than the device's current version and all constraints hold. The force flag
// on the candidate bypasses the constraint checks, never the version
// ordering. Versions that do not parse as semantic versions never yield an
// update.
func decideOta(rlog *logrus.Entry, current FirmwareState, candidate *firmware.Descriptor,
	caps Capabilities, location *time.Location, now time.Time, retry BackoffPolicy) OtaDecision {

	decision := OtaDecision{Retry: retry}

	if candidate == nil {
		return decision
	}

	currentVersion, err := semver.NewVersion(current.Version)
	if err != nil {
		rlog.Debugf("device reports unparseable firmware version %q, no update", current.Version)
		return decision
	}
	candidateVersion, err := semver.NewVersion(candidate.Version)
	if err != nil {
		rlog.Warnf("firmware catalog has unparseable version %q for %s", candidate.Version, candidate.DeviceType)
		return decision
	}

	if !candidateVersion.GreaterThan(currentVersion) {
		return decision
	}

	if !candidate.Force && !constraintsSatisfied(candidate.Constraints, caps, location, now) {
		return decision
	}

	decision.Available = true
	decision.Firmware = candidate
	return decision
}

func constraintsSatisfied(c firmware.Constraints, caps Capabilities, location *time.Location, now time.Time) bool {
	if c.MinBatteryPercent > 0 && caps.BatteryPercent < c.MinBatteryPercent {
		return false
	}
	if len(c.Networks) > 0 {
		permitted := false
		for _, network := range c.Networks {
			if network == caps.Network {
				permitted = true
				break
			}
		}
		if !permitted {
			return false
		}
	}
	if c.Window != nil {
		if location == nil {
			location = time.UTC
		}
		hour := now.In(location).Hour()
		if !inWindow(hour, c.Window.StartHour, c.Window.EndHour) {
			return false
		}
	}
	return true
}

// inWindow handles windows crossing midnight, e.g. 22 to 4.
func inWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
