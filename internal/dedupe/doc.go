// Package dedupe suppresses repeated station batches.
//
// MQTT at QoS 1 delivers a message at least once, so a broker may hand the
// same batch to the gateway again after a reconnect. The MQTT handler claims
// the SHA-256 of each payload in a Window before storing it and releases the
// claim when storing fails.
package dedupe
