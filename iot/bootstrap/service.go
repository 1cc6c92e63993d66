package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/provisio/core/logger"
	"github.com/relabs-tech/provisio/core/tenant"
	"github.com/relabs-tech/provisio/iot/firmware"
	"github.com/relabs-tech/provisio/iot/topics"
)

// ShadowProvider hands out the remotely stored desired state for a device.
// The block is passed through unmodified.
type ShadowProvider interface {
	DesiredFor(ctx context.Context, tenantID, deviceID string) (json.RawMessage, error)
}

// PolicyProvider hands out operational policies for a device type. The block
// is passed through unmodified.
type PolicyProvider interface {
	PoliciesFor(ctx context.Context, tenantID, deviceType string) (json.RawMessage, error)
}

// ServiceConfig is the static configuration of the bootstrap service.
type ServiceConfig struct {
	// ConfigVersion is stamped into every provisioning response.
	ConfigVersion string
	// ConfigTTL is the lifetime of a provisioning response.
	ConfigTTL time.Duration
	// Reconnect is the broker reconnect backoff handed to every device.
	Reconnect BackoffPolicy
	// OtaRetry is the update retry backoff handed to every device.
	OtaRetry BackoffPolicy
	// WebSocket is an opaque transport configuration block, passed through.
	WebSocket json.RawMessage
}

// Builder is a builder helper for the Service
type Builder struct {
	// Issuer mints transient broker credentials. This is mandatory.
	Issuer CredentialIssuer
	// Catalog answers firmware lookups. This is mandatory.
	Catalog firmware.Catalog
	// SigningKey signs the data payload of every success envelope. This is
	// mandatory.
	SigningKey []byte
	// Shadow provides desired shadow state. Optional.
	Shadow ShadowProvider
	// Policies provides operational policies. Optional.
	Policies PolicyProvider
	// Config is the static service configuration.
	Config ServiceConfig
}

// Service assembles complete provisioning responses.
type Service struct {
	issuer   CredentialIssuer
	catalog  firmware.Catalog
	shadow   ShadowProvider
	policies PolicyProvider
	signer   *Signer
	cfg      ServiceConfig
	now      func() time.Time
}

// NewService returns the bootstrap service.
func NewService(b *Builder) *Service {
	if b.Issuer == nil {
		panic("Issuer is missing")
	}
	if b.Catalog == nil {
		panic("Catalog is missing")
	}
	cfg := b.Config
	if cfg.ConfigVersion == "" {
		cfg.ConfigVersion = "1"
	}
	if cfg.ConfigTTL <= 0 {
		cfg.ConfigTTL = 24 * time.Hour
	}
	if cfg.Reconnect == (BackoffPolicy{}) {
		cfg.Reconnect = BackoffPolicy{BaseMs: 1000, MaxMs: 60000, Jitter: 0.2}
	}
	if cfg.OtaRetry == (BackoffPolicy{}) {
		cfg.OtaRetry = BackoffPolicy{BaseMs: 5000, MaxMs: 300000, Jitter: 0.2}
	}
	if err := cfg.Reconnect.Validate(); err != nil {
		panic(err)
	}
	if err := cfg.OtaRetry.Validate(); err != nil {
		panic(err)
	}
	return &Service{
		issuer:   b.Issuer,
		catalog:  b.Catalog,
		shadow:   b.Shadow,
		policies: b.Policies,
		signer:   NewSigner(b.SigningKey),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Bootstrap assembles one complete provisioning response. It always returns
// an envelope, either the signed success shape or one of the error shapes.
func (s *Service) Bootstrap(ctx context.Context, t tenant.Context, req Request) *ResponseEnvelope {
	rlog := logger.FromContext(ctx)
	now := s.now()

	tenantID := t.ID
	if tenantID == tenant.DefaultTenantID && req.TenantID != "" {
		// the request body names a tenant and nothing else resolved one
		tenantID = req.TenantID
	}

	strategy := topics.NewStrategy(tenantID, req.DeviceType)
	deviceType := strategy.DeviceType()
	if deviceType.Custom {
		// graceful degradation, unknown types still get a full namespace
		rlog.Infof("unsupported device type %q for device %s, continuing as custom", req.DeviceType, req.DeviceID)
	}

	set := strategy.GenerateTopics(req.DeviceID)
	if req.SubDevice != nil {
		sub := strategy.GenerateSubDeviceTopics(req.DeviceID, req.SubDevice.ID, req.SubDevice.Type)
		set.SubDevice = &sub
	}

	credential, err := s.issuer.Issue(ctx, tenantID, req.DeviceID)
	if err != nil {
		rlog.WithError(err).Errorf("Error 4331: credential issuance failed for %s/%s", tenantID, req.DeviceID)
		return NewErrorEnvelope(http.StatusServiceUnavailable,
			"credential issuance failed", ErrorCodeCollaboratorUnavailable, now).
			WithRetryAfter(s.cfg.Reconnect.BaseMs)
	}

	candidate, err := s.catalog.LatestFor(ctx, deviceType.Name)
	if err != nil {
		rlog.WithError(err).Errorf("Error 4332: firmware lookup failed for %s", deviceType.Name)
		return NewErrorEnvelope(http.StatusServiceUnavailable,
			"firmware catalog unavailable", ErrorCodeCollaboratorUnavailable, now).
			WithRetryAfter(s.cfg.Reconnect.BaseMs)
	}

	location := time.UTC
	if t.Timezone != "" {
		if loc, err := time.LoadLocation(t.Timezone); err == nil {
			location = loc
		} else {
			rlog.Warnf("unknown tenant timezone %q, falling back to UTC", t.Timezone)
		}
	}

	data := Data{
		Config: Config{
			Ver:       s.cfg.ConfigVersion,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.cfg.ConfigTTL).Unix(),
			Device: DeviceIdentity{
				TenantID:   tenantID,
				DeviceType: deviceType.Name,
				DeviceID:   req.DeviceID,
				UniqueID:   req.UniqueID,
			},
		},
		Credential: credential,
		Topics:     set,
		Acl: AclRule{
			Publish: []string{
				set.TelemetryPub, set.StatusPub, set.EventPub,
				set.CmdresPub, set.ShadowReportedPub, set.OtaProgressPub,
			},
			Subscribe: []string{
				set.CmdSub, set.ShadowDesiredSub, set.CfgSub,
			},
		},
		Reconnect: s.cfg.Reconnect,
		Ota:       decideOta(rlog, req.Firmware, candidate, req.Capabilities, location, now, s.cfg.OtaRetry),
		ServerTime: ServerTime{
			Epoch:           now.Unix(),
			TzOffsetSeconds: tzOffsetSeconds(now, location),
			Timezone:        t.Timezone,
		},
		WebSocket: s.cfg.WebSocket,
	}

	// shadow and policy blocks are enrichment, their collaborators failing
	// must not fail the whole bootstrap
	if s.shadow != nil {
		if desired, err := s.shadow.DesiredFor(ctx, tenantID, req.DeviceID); err != nil {
			rlog.WithError(err).Warnf("shadow lookup failed for %s/%s", tenantID, req.DeviceID)
		} else {
			data.ShadowDesired = desired
		}
	}
	if s.policies != nil {
		if policies, err := s.policies.PoliciesFor(ctx, tenantID, deviceType.Name); err != nil {
			rlog.WithError(err).Warnf("policy lookup failed for %s/%s", tenantID, deviceType.Name)
		} else {
			data.Policies = policies
		}
	}

	envelope, err := NewSuccessEnvelope(s.signer, data, now)
	if err != nil {
		rlog.WithError(err).Errorf("Error 4333: cannot serialize provisioning response")
		return NewErrorEnvelope(http.StatusInternalServerError,
			"cannot serialize response", ErrorCodeCollaboratorUnavailable, now).
			WithRetryAfter(s.cfg.Reconnect.BaseMs)
	}
	return envelope
}

func tzOffsetSeconds(now time.Time, location *time.Location) int {
	_, offset := now.In(location).Zone()
	return offset
}
