package topics

// the fixed topic prefix consumed by the broker's ACL engine
const Prefix = "iot"

// channel names within a device namespace
const (
	ChannelTelemetry       = "telemetry"
	ChannelStatus          = "status"
	ChannelEvent           = "event"
	ChannelCommand         = "cmd"
	ChannelCommandResponse = "cmdres"
	ChannelShadowDesired   = "shadow/desired"
	ChannelShadowReported  = "shadow/reported"
	ChannelConfig          = "cfg"
	ChannelOtaProgress     = "otaprogress"
)

// TopicSet is the full topic namespace generated for one device. It is
// generated fresh per request and never persisted.
type TopicSet struct {
	TelemetryPub      string    `json:"telemetryPub"`
	StatusPub         string    `json:"statusPub"`
	EventPub          string    `json:"eventPub"`
	CmdSub            string    `json:"cmdSub"`
	CmdresPub         string    `json:"cmdresPub"`
	ShadowDesiredSub  string    `json:"shadowDesiredSub"`
	ShadowReportedPub string    `json:"shadowReportedPub"`
	CfgSub            string    `json:"cfgSub"`
	OtaProgressPub    string    `json:"otaProgressPub"`
	SubDevice         *TopicSet `json:"subDevice,omitempty"`
}

// ParsedTopic is the result of parsing a topic path.
type ParsedTopic struct {
	Prefix     string
	TenantID   string
	DeviceType string
	DeviceID   string
	Channel    string
	Subchannel string
}

// Strategy generates and validates topics for one (tenant, device type)
// combination. The zero value is not usable, use NewStrategy.
type Strategy struct {
	tenantID   string
	deviceType DeviceType
}

// NewStrategy returns a topic strategy for the given tenant and device type.
// Unsupported device types are accepted and tagged as custom.
func NewStrategy(tenantID, deviceType string) *Strategy {
	return &Strategy{
		tenantID:   tenantID,
		deviceType: ParseDeviceType(deviceType),
	}
}

// TenantID returns the tenant this strategy generates topics for.
func (s *Strategy) TenantID() string { return s.tenantID }

// DeviceType returns the normalized device type variant.
func (s *Strategy) DeviceType() DeviceType { return s.deviceType }

func (s *Strategy) base(deviceID string) string {
	return Prefix + "/" + s.tenantID + "/" + s.deviceType.Name + "/" + deviceID + "/"
}

// GenerateTopics returns the nine topics for the given device.
func (s *Strategy) GenerateTopics(deviceID string) TopicSet {
	base := s.base(deviceID)
	return TopicSet{
		TelemetryPub:      base + ChannelTelemetry,
		StatusPub:         base + ChannelStatus,
		EventPub:          base + ChannelEvent,
		CmdSub:            base + ChannelCommand,
		CmdresPub:         base + ChannelCommandResponse,
		ShadowDesiredSub:  base + ChannelShadowDesired,
		ShadowReportedPub: base + ChannelShadowReported,
		CfgSub:            base + ChannelConfig,
		OtaProgressPub:    base + ChannelOtaProgress,
	}
}

// GenerateSubDeviceTopics returns the topic set for a device attached behind
// a gateway. The namespace is nested below the gateway's own namespace. The
// sub device type is normalized like any other type but does not appear in
// the paths, the gateway's type does.
func (s *Strategy) GenerateSubDeviceTopics(gatewayID, subDeviceID, subDeviceType string) TopicSet {
	_ = ParseDeviceType(subDeviceType)
	base := s.base(gatewayID) + "subdev/" + subDeviceID + "/"
	return TopicSet{
		TelemetryPub:      base + ChannelTelemetry,
		StatusPub:         base + ChannelStatus,
		EventPub:          base + ChannelEvent,
		CmdSub:            base + ChannelCommand,
		CmdresPub:         base + ChannelCommandResponse,
		ShadowDesiredSub:  base + ChannelShadowDesired,
		ShadowReportedPub: base + ChannelShadowReported,
		CfgSub:            base + ChannelConfig,
		OtaProgressPub:    base + ChannelOtaProgress,
	}
}

// Parse splits a topic path into its segments. It accepts exactly five
// slash-delimited segments for a plain channel and six for a channel with
// subchannel. The first segment must be the literal topic prefix. Any empty
// segment or any other segment count yields nil. The scan is a single
// bounded pass over the path.
func Parse(path string) *ParsedTopic {
	var segments [7]string
	n := 0
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i == start {
				return nil // empty segment
			}
			if n == len(segments) {
				return nil // too many segments
			}
			segments[n] = path[start:i]
			n++
			start = i + 1
		}
	}
	if n != 5 && n != 6 {
		return nil
	}
	if segments[0] != Prefix {
		return nil
	}
	parsed := &ParsedTopic{
		Prefix:     segments[0],
		TenantID:   segments[1],
		DeviceType: segments[2],
		DeviceID:   segments[3],
		Channel:    segments[4],
	}
	if n == 6 {
		parsed.Subchannel = segments[5]
	}
	return parsed
}

// ParseTopicPath is Parse bound to a strategy, for symmetry with the other
// strategy operations.
func (s *Strategy) ParseTopicPath(path string) *ParsedTopic {
	return Parse(path)
}

// ValidateTopicOwnership returns true if and only if path parses and both
// the embedded tenant and the embedded device id match this strategy's
// tenant and the given device id exactly.
func (s *Strategy) ValidateTopicOwnership(path, deviceID string) bool {
	parsed := Parse(path)
	if parsed == nil {
		return false
	}
	return parsed.TenantID == s.tenantID && parsed.DeviceID == deviceID
}

// FullChannel reconstructs the full channel name including the subchannel.
func (p *ParsedTopic) FullChannel() string {
	if p.Subchannel == "" {
		return p.Channel
	}
	return p.Channel + "/" + p.Subchannel
}

// PublishChannels lists the channels a device may publish on.
func PublishChannels() []string {
	return []string{
		ChannelTelemetry,
		ChannelStatus,
		ChannelEvent,
		ChannelCommandResponse,
		ChannelShadowReported,
		ChannelOtaProgress,
	}
}

// SubscribeChannels lists the channels a device may subscribe to.
func SubscribeChannels() []string {
	return []string{
		ChannelCommand,
		ChannelShadowDesired,
		ChannelConfig,
	}
}
