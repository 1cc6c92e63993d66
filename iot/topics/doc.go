// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package topics generates, parses and validates the MQTT topic namespace for devices

Every device gets a deterministic set of topics derived from its tenant, its device
type and its device id:

	iot/{tenant}/{deviceType}/{deviceId}/{channel}

Two channels carry a subchannel segment, shadow/desired and shadow/reported. Devices
attached behind a gateway get a nested namespace:

	iot/{tenant}/{gatewayType}/{gatewayId}/subdev/{subDeviceId}/{channel}

The device type taxonomy is closed, but unknown types are carried verbatim into the
generated topics and tagged as custom. Topic generation never fails for an unknown
type, the broker simply treats the device as a custom one.

All functions in this package are pure and safe for concurrent use.
*/
package topics
