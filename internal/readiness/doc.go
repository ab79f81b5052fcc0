// Package readiness polls a target for application-level readiness using
// an ordered list of independent check strategies.
//
// A broker process being "running" says nothing about whether it accepts
// traffic, so readiness is probed through the target itself: either by
// executing a command inside it and matching the output, or by scanning
// its recent log for a known marker line. Checks are evaluated in
// declared order on every polling pass, short-circuiting on the first
// success, so cheaper or more specific probes should be listed before
// generic log-grep fallbacks.
//
// Probe failures (exec errors, connection refused inside the target) are
// never fatal; they count as "not ready yet" and the loop moves on. Only
// the overall deadline ends the wait, reported as Result.Ready=false
// rather than an error, so orchestration code can branch without error
// handling.
//
// The target is abstracted behind ProbeTarget, which both the Kubernetes
// pod adapter and the Docker container adapter satisfy, and the clock is
// injectable, so the polling logic is fully testable without a broker.
package readiness
