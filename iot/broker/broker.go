package broker

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/relabs-tech/provisio/core/logger"
	"github.com/relabs-tech/provisio/iot/topics"
)

// CredentialVerifier checks a broker connect against the latest credential
// issuance. It returns the tenant the credential belongs to.
type CredentialVerifier interface {
	Verify(clientID, username, password string) (string, bool)
}

// Broker is the MQTT broker for provisioned devices.
type Broker struct {
	p *plugin
}

// Builder is a builder helper for the Broker
type Builder struct {
	// Verifier checks connect credentials. This is mandatory.
	Verifier CredentialVerifier
	// Listen is the broker listen address. Defaults to ":1883".
	Listen string
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// plugin is the plugin for GMQTT
type plugin struct {
	ln       net.Listener
	verifier CredentialVerifier

	tenantsRwmux sync.RWMutex
	tenants      map[string]string // client id -> tenant id

	service gmqtt.Server
}

// NewBroker returns a new broker. The broker will not actually run until
// you call Run()
func NewBroker(bb *Builder) *Broker {
	if bb.Verifier == nil {
		panic("Verifier is missing")
	}
	listen := bb.Listen
	if listen == "" {
		listen = ":1883"
	}

	var ln net.Listener
	var err error
	if bb.CertFile != "" || bb.KeyFile != "" {
		crt, loadErr := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
		if loadErr != nil {
			panic(loadErr)
		}
		ln, err = tls.Listen("tcp", listen, &tls.Config{Certificates: []tls.Certificate{crt}})
	} else {
		ln, err = net.Listen("tcp", listen)
	}
	if err != nil {
		panic(err)
	}

	return &Broker{
		p: &plugin{
			ln:       ln,
			verifier: bb.Verifier,
			tenants:  make(map[string]string),
		},
	}
}

// Run is blocking and runs the server. It listens on syscall.SIGTERM for
// a graceful shutdown.
func (b *Broker) Run() {
	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.ln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()

	logger.Default().Infof("broker listening on %s", b.p.ln.Addr())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	s.Stop(context.Background())
	logger.Default().Infoln("broker stopped")
}

// PublishMessageQ1 publishes an MQTT message with quality level 1. This is
// how the service pushes commands, configuration and desired shadow state
// to connected devices.
func (b *Broker) PublishMessageQ1(topic string, payload []byte) {
	logger.Default().Debugf("publish on %s (%d bytes)", topic, len(payload))
	msg := gmqtt.NewMessage(topic, payload, packets.QOS_1)
	b.p.service.PublishService().Publish(msg)
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	p.service = service
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "provisio broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

func (p *plugin) tenantForClient(clientID string) string {
	p.tenantsRwmux.RLock()
	defer p.tenantsRwmux.RUnlock()
	return p.tenants[clientID]
}

// OnConnectWrapper verifies the transient credential from the bootstrap
// response. The client id must be the device id the credential was issued
// for, anything else is rejected.
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		options := client.OptionsReader()
		clientID := options.ClientID()
		tenantID, ok := p.verifier.Verify(clientID, options.Username(), options.Password())
		if !ok {
			logger.Default().Warnf("connect denied, %s not authorized", clientID)
			return packets.CodeBadUsernameorPsw
		}

		p.tenantsRwmux.Lock()
		p.tenants[clientID] = tenantID
		p.tenantsRwmux.Unlock()

		logger.Default().Infof("connect %s/%s", tenantID, clientID)
		return connect(ctx, client)
	}
}

// OnSubscribeWrapper enforces the subscription side of the device ACL.
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		clientID := client.OptionsReader().ClientID()
		if !permitted(topic.Name, p.tenantForClient(clientID), clientID, topics.SubscribeChannels()) {
			logger.Default().Warnf("subscribe %s %s denied", clientID, topic.Name)
			return packets.SUBSCRIBE_FAILURE
		}
		return subscribe(ctx, client, topic)
	}
}

// OnMsgArrivedWrapper enforces the publish side of the device ACL.
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		clientID := client.OptionsReader().ClientID()
		if !permitted(msg.Topic(), p.tenantForClient(clientID), clientID, topics.PublishChannels()) {
			logger.Default().Warnf("publish %s %s denied", clientID, msg.Topic())
			return false
		}
		return arrived(ctx, client, msg)
	}
}

// permitted reports whether the topic lies in the device's own namespace,
// on one of the given channels. Both the plain device namespace and the
// nested subdev namespace of a gateway qualify. Wildcards never qualify,
// they do not survive parsing.
func permitted(topic, tenantID, clientID string, channels []string) bool {
	if tenantID == "" {
		return false
	}
	channel := ""
	if parsed := topics.Parse(topic); parsed != nil {
		if parsed.TenantID != tenantID || parsed.DeviceID != clientID {
			return false
		}
		channel = parsed.FullChannel()
	} else {
		channel = subDeviceChannel(topic, tenantID, clientID)
	}
	if channel == "" {
		return false
	}
	for _, name := range channels {
		if channel == name {
			return true
		}
	}
	return false
}

// subDeviceChannel extracts the channel from a gateway's nested subdev
// topic, or returns the empty string if the topic is not a well-formed
// subdev topic owned by the client.
func subDeviceChannel(topic, tenantID, clientID string) string {
	segments := strings.Split(topic, "/")
	if len(segments) != 7 && len(segments) != 8 {
		return ""
	}
	for _, segment := range segments {
		if segment == "" {
			return ""
		}
	}
	if segments[0] != topics.Prefix || segments[1] != tenantID ||
		segments[3] != clientID || segments[4] != "subdev" {
		return ""
	}
	channel := segments[6]
	if len(segments) == 8 {
		channel += "/" + segments[7]
	}
	return channel
}
