/*Package idempotency guarantees at-most-once effective processing of retried write requests

The middleware keys every write request by its X-Message-Id header and records
the first completed response under that key for 24 hours. A retry with the same
message id within that window replays the recorded response byte for byte, the
handler does not run again.

Two known limitations are kept on purpose:

Requests without an X-Message-Id share one literal fallback id, so unrelated
clients that omit the header can collide on a single slot.

The lookup-then-write sequence is not atomic. Two concurrent first-time
requests with the same never-seen key can both pass the lookup and both
execute the handler. The guarantee therefore holds per key per window only in
the absence of such a race.
*/
package idempotency
