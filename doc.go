// Package streamops provides an event-driven workflow orchestration
// core for Go.
//
// StreamOps separates the authoritative record of a workflow from its
// execution: a gateway validates and persists creation requests, then
// publishes an event on a partitioned bus; an execution engine consumes
// those events, runs the workflow's steps strictly in order, and
// reports every status transition back to the store over a status-sync
// channel. The two sides never share memory, which is what lets them
// scale independently.
//
// # Core Concepts
//
//  1. Gateway
//  2. Bus
//  3. Engine
//  4. StepExecutor
//  5. Status-Sync
//  6. LocalStack
//
// # Gateway
//
// The gateway owns the canonical Workflow and Task records. It
// validates creation input (name length, step count, priority enum),
// assigns ids, persists the pending record and publishes a
// workflow.created event keyed by the new id. The same key always maps
// to the same bus partition, so all events for one workflow arrive in
// publish order.
//
// An HTTP surface (gofiber) exposes the public /api routes plus the
// /internal PATCH endpoints the execution side reports through.
//
// # Bus
//
// The bus is a partitioned, at-least-once transport with named
// consumer groups. Two implementations ship: an in-memory broker for
// tests and single-process deployments, and a Redis Streams transport
// for real deployments. Handler failures are contained at the message
// boundary; the failure policy (drop or dead-letter) is explicit
// configuration.
//
// # Engine
//
// The engine reconstructs a working copy of the workflow from the
// event payload and drives it pending → processing → completed or
// failed. Steps run strictly sequentially; a step failure is terminal
// for the whole workflow. Redelivered envelopes are detected by event
// id and skipped. Each transition is pushed through Status-Sync as a
// partial patch; a failed report never interrupts step execution.
//
// # StepExecutor
//
// Step execution is an injected capability:
//
//	type StepExecutor interface {
//	    ExecuteStep(ctx context.Context, wf *Workflow, step string) error
//	}
//
// Tests use deterministic fakes; SimulatedExecutor reproduces a
// delay-plus-random-failure profile for demos.
//
// # Status-Sync
//
// Status-Sync is a synchronous point-to-point call, not a bus message.
// LocalReporter writes straight into an in-process store; HTTPReporter
// PATCHes the gateway's internal endpoints; RetryingReporter adds
// bounded exponential backoff for transient failures.
//
// # LocalStack
//
// LocalStack bundles store, bus, gateway, engine and processor into a
// single process for development and testing. It is intentionally not
// crash-durable.
package streamops
