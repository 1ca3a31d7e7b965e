// Package telemetry writes link metrics to InfluxDB.
//
// Telemetry is optional (influxdb.enabled in config.yaml) and covers
// only the link layer's own health: reachability transitions, poll
// watchdog transitions, and message counts per kind. Device state never
// passes through here.
//
// Writes are batched and non-blocking; the coordinator calls into this
// package from its event loop without stalling message processing.
// Async write failures surface through SetOnError.
package telemetry
