// Package camera is the per-camera control loop.
//
// A Controller owns one sensor's exposure state and request bookkeeping
// and runs three pieces of logic:
//
//   - HandleEvent is the frame/request synchronizer. The event dispatcher
//     calls it for every request-manager notification on the camera's
//     session. It tracks frame and request ids, fills the frame buffer
//     metadata slot for each ready frame, and re-issues buffer requests
//     after a stall, a skipped frame or dropped requests.
//   - ComputeExposure is the auto-exposure controller. Given the measured
//     grey fraction of a frame it updates the smoothed target, the EV
//     history and the conversion-gain blend, searches the neighbouring gain
//     indices for the best (time, gain) pair, and renders register writes.
//   - Run is the publisher loop. It waits for completed buffers, builds
//     a FrameRecord, drives the exposure controller and hands the record
//     to the publish transport.
//
// The synchronizer and the publisher loop run on different goroutines.
// They share the exposure state under one mutex that is never held across
// buffer acquisition, the register-write guard delay, or transport I/O.
package camera
