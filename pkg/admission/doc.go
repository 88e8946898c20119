// Package admission implements exactly-once admission of submissions. A
// submission is identified by a caller-supplied idempotency key or, absent
// one, by a content fingerprint of its intent and payload. Two claim
// primitives are offered: claim-once, which rejects duplicates outright, and
// claim-or-get, which replays the cached response of a completed admission.
package admission
