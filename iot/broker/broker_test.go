package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/provisio/iot/topics"
)

func TestPermittedPublish(t *testing.T) {
	publish := topics.PublishChannels()

	assert.True(t, permitted("iot/acme/sensor/dev-1/telemetry", "acme", "dev-1", publish))
	assert.True(t, permitted("iot/acme/sensor/dev-1/shadow/reported", "acme", "dev-1", publish))
	assert.True(t, permitted("iot/acme/sensor/dev-1/otaprogress", "acme", "dev-1", publish))

	// subscribe-only channels are denied for publish
	assert.False(t, permitted("iot/acme/sensor/dev-1/cmd", "acme", "dev-1", publish))
	assert.False(t, permitted("iot/acme/sensor/dev-1/shadow/desired", "acme", "dev-1", publish))
}

func TestPermittedSubscribe(t *testing.T) {
	subscribe := topics.SubscribeChannels()

	assert.True(t, permitted("iot/acme/sensor/dev-1/cmd", "acme", "dev-1", subscribe))
	assert.True(t, permitted("iot/acme/sensor/dev-1/shadow/desired", "acme", "dev-1", subscribe))
	assert.True(t, permitted("iot/acme/sensor/dev-1/cfg", "acme", "dev-1", subscribe))

	assert.False(t, permitted("iot/acme/sensor/dev-1/telemetry", "acme", "dev-1", subscribe))
}

func TestPermittedRejectsForeignNamespaces(t *testing.T) {
	publish := topics.PublishChannels()

	assert.False(t, permitted("iot/acme/sensor/dev-2/telemetry", "acme", "dev-1", publish))
	assert.False(t, permitted("iot/other/sensor/dev-1/telemetry", "acme", "dev-1", publish))
	assert.False(t, permitted("iot/acme/sensor/dev-1/telemetry", "", "dev-1", publish))
}

func TestPermittedRejectsWildcardsAndMalformed(t *testing.T) {
	for _, topic := range []string{
		"iot/acme/sensor/+/telemetry",
		"iot/acme/sensor/dev-1/#",
		"iot/acme/sensor/dev-1",
		"iot/acme/sensor/dev-1//telemetry",
		"other/acme/sensor/dev-1/telemetry",
		"",
	} {
		assert.False(t, permitted(topic, "acme", "dev-1", topics.PublishChannels()), topic)
	}
}

func TestPermittedSubDeviceNamespace(t *testing.T) {
	publish := topics.PublishChannels()
	subscribe := topics.SubscribeChannels()

	assert.True(t, permitted("iot/acme/gateway/gw-1/subdev/sub-7/telemetry", "acme", "gw-1", publish))
	assert.True(t, permitted("iot/acme/gateway/gw-1/subdev/sub-7/shadow/reported", "acme", "gw-1", publish))
	assert.True(t, permitted("iot/acme/gateway/gw-1/subdev/sub-7/cmd", "acme", "gw-1", subscribe))

	// foreign gateway, wrong marker, bad shape
	assert.False(t, permitted("iot/acme/gateway/gw-2/subdev/sub-7/telemetry", "acme", "gw-1", publish))
	assert.False(t, permitted("iot/acme/gateway/gw-1/nested/sub-7/telemetry", "acme", "gw-1", publish))
	assert.False(t, permitted("iot/acme/gateway/gw-1/subdev/sub-7", "acme", "gw-1", publish))
	assert.False(t, permitted("iot/acme/gateway/gw-1/subdev//telemetry", "acme", "gw-1", publish))
}
