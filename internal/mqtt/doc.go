// Package mqtt ingests station readings published to an MQTT broker.
//
// A station publishes one JSON message per batch:
//
//	{"deviceName": "Woodford_Sensor",
//	 "authenticationKey": "<session token>",
//	 "readings": [{"time": "2021-05-07T02:54:10Z", "temperature": 21.4, ...}]}
//
// Handler authorizes the message through the same auth.Gate as the HTTP API
// and stores the readings with telemetry.Service.CreateBatch, so readings
// outside the quality gate are dropped one by one. Subscriber owns the paho
// client and resubscribes after every reconnect.
//
// Subscriptions use QoS 1, so the broker may deliver a batch more than once.
// With WithDedupe, a payload byte-identical to one stored recently is
// reported as ErrDuplicate instead of being stored twice.
package mqtt
