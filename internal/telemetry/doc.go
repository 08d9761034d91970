// Package telemetry wraps OpenTelemetry SDK initialization for storyflow,
// providing a centrally configured TracerProvider and MeterProvider. When
// telemetry is disabled the global providers remain noop and no external
// service is contacted.
package telemetry
