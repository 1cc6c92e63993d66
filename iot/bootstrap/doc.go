// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package bootstrap provisions devices onto the messaging fabric

A device posts its identity to /api/config/bootstrap and receives everything
it needs to participate: transient broker credentials, its deterministic topic
namespace, a least-privilege ACL over exactly those topics, an over-the-air
update decision, reconnect and retry policies, desired shadow state and
server time, all wrapped into a signed response envelope.

The endpoint is public, devices have no bearer token before they are
provisioned. Retried requests are deduplicated by the idempotency middleware,
see the core/idempotency package.

Persistence, credential cryptography and firmware storage live behind narrow
collaborator interfaces so the service can be tested with stubs.
*/
package bootstrap
