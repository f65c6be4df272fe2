// Package api defines the public domain types shared by the producer and
// consumer sides of streamops: workflow and task records with their status
// state machine, the event envelope contract, the step executor capability,
// the error taxonomy, and observer hooks.
//
// The package deliberately contains no behavior beyond type invariants.
// Producer-side logic lives in internal/gateway, execution in
// internal/engine, and transport in internal/bus.
package api
