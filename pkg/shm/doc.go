// Package shm provides named, fixed-size shared memory regions for publishing
// data to independent reader processes.
//
// A region is created or attached by name, sized, mapped read-write and
// zeroed only when it was freshly created. The writer never unmaps or unlinks
// it, so a reader may attach after the writer has exited. Teardown is an
// explicit administrative step (Remove).
//
// This package is instrumented with OpenTelemetry metrics and tracing (OTel Go SDK v1.30.0).
//
// Example usage:
//
//	region, err := shm.Open(ctx, shm.Options{
//	  Name: "/yolo_ipc_shm",
//	  Size: detection.BatchSize,
//	})
//	// ...
//	copy(region.Bytes(), payload)
//
// Platform-specific helpers are in internal/shm.
package shm
