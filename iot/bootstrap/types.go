package bootstrap

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/provisio/iot/firmware"
	"github.com/relabs-tech/provisio/iot/topics"
)

// DeviceIdentity identifies one device within one tenant. It is immutable
// per request.
type DeviceIdentity struct {
	TenantID   string `json:"tenantId"`
	DeviceType string `json:"deviceType"`
	DeviceID   string `json:"deviceId"`
	UniqueID   string `json:"uniqueId"`
}

// FirmwareState is the firmware a device reports to be running.
type FirmwareState struct {
	Version string `json:"version"`
}

// HardwareInfo is the hardware a device reports.
type HardwareInfo struct {
	ID       string `json:"id"`
	Revision string `json:"revision,omitempty"`
}

// Capabilities are the device-reported conditions the OTA constraint checks
// run against.
type Capabilities struct {
	BatteryPercent int    `json:"batteryPercent,omitempty"`
	Network        string `json:"network,omitempty"`
}

// SubDeviceInfo describes a device attached behind a gateway, for which the
// gateway requests a nested topic namespace.
type SubDeviceInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Request is the bootstrap request body. The tenant is normally resolved
// from request metadata, the tenantId field only applies when nothing else
// resolved.
type Request struct {
	TenantID     string         `json:"tenantId,omitempty"`
	DeviceType   string         `json:"deviceType"`
	DeviceID     string         `json:"deviceId"`
	UniqueID     string         `json:"uniqueId"`
	Firmware     FirmwareState  `json:"firmware"`
	Hardware     HardwareInfo   `json:"hardware"`
	Capabilities Capabilities   `json:"capabilities"`
	SubDevice    *SubDeviceInfo `json:"subDevice,omitempty"`
}

// MqttCredential is a transient broker credential. The password is random
// per issuance and expires.
type MqttCredential struct {
	ClientID          string `json:"clientId"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	PasswordExpiresAt int64  `json:"passwordExpiresAt"`
}

// AclRule is the explicit publish/subscribe allow-list issued to a device.
// Both lists are exact subsets of the device's own topic set, never
// wildcarded.
type AclRule struct {
	Publish   []string `json:"publish"`
	Subscribe []string `json:"subscribe"`
}

// BackoffPolicy parameterizes exponential backoff, for broker reconnects and
// for OTA retries alike.
type BackoffPolicy struct {
	BaseMs int     `json:"baseMs"`
	MaxMs  int     `json:"maxMs"`
	Jitter float64 `json:"jitter,omitempty"`
}

// Validate checks the policy invariant.
func (p BackoffPolicy) Validate() error {
	if p.MaxMs < p.BaseMs {
		return fmt.Errorf("backoff policy: maxMs %d must not be smaller than baseMs %d", p.MaxMs, p.BaseMs)
	}
	return nil
}

// OtaDecision is the update verdict for one device. The firmware block is
// present if and only if an update is available.
type OtaDecision struct {
	Available bool                 `json:"available"`
	Firmware  *firmware.Descriptor `json:"firmware,omitempty"`
	Retry     BackoffPolicy        `json:"retry"`
}

// ServerTime anchors the device clock, with the tenant's timezone offset
// when one is known.
type ServerTime struct {
	Epoch           int64  `json:"epoch"`
	TzOffsetSeconds int    `json:"tzOffsetSeconds"`
	Timezone        string `json:"timezone,omitempty"`
}

// Config is the versioned frame around one provisioning response.
type Config struct {
	Ver       string         `json:"ver"`
	IssuedAt  int64          `json:"issuedAt"`
	ExpiresAt int64          `json:"expiresAt"`
	Device    DeviceIdentity `json:"device"`
}

// Data is the full provisioning payload inside a successful envelope.
type Data struct {
	Config        Config          `json:"config"`
	Credential    MqttCredential  `json:"credential"`
	Topics        topics.TopicSet `json:"topics"`
	Acl           AclRule         `json:"acl"`
	Reconnect     BackoffPolicy   `json:"reconnect"`
	Ota           OtaDecision     `json:"ota"`
	ShadowDesired json.RawMessage `json:"shadowDesired,omitempty"`
	Policies      json.RawMessage `json:"policies,omitempty"`
	ServerTime    ServerTime      `json:"serverTime"`
	WebSocket     json.RawMessage `json:"webSocket,omitempty"`
}
