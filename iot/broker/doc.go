/*Package broker provides the MQTT broker that terminates device connections.

Devices connect with the transient credentials handed out by the bootstrap
endpoint: the client id is the device id, the username is {tenant}/{device},
the password is the random secret from the latest issuance. The broker
verifies every connect against the credential issuer.

Topic access is enforced per device against the same topic taxonomy the
bootstrap endpoint issues. A device may publish only on its own telemetry,
status, event, cmdres, shadow/reported and otaprogress channels, and may
subscribe only to its own cmd, shadow/desired and cfg channels. Gateways get
the same rights on their nested subdev namespaces. Everything else is denied.
*/
package broker
