// Package telemetry wires the OpenTelemetry SDK for agentkernel serve.
//
// Init builds OTLP/gRPC trace and metric exporters and, unless WithoutGlobal is
// given, installs them as the otel globals. With telemetry disabled nothing is
// dialed and Providers hands out noop tracers.
//
// Kernel operations are traced as "kernel.<op>" spans. KernelRecorder mirrors
// the kernel.Recorder events onto OTel instruments (kernel.plans,
// kernel.memory.operations and so on) next to the Prometheus collector.
package telemetry
