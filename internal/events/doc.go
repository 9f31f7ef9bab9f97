// Package events carries hardware request-manager notifications from the
// media driver to the camera controllers.
//
// A Source yields Events; on Linux V4L2Source reads them from the video
// device with VIDIOC_DQEVENT, and the simulation rig implements the same
// interface. Dispatcher is the single dispatch loop: it polls the source
// with a bounded timeout, retries interrupted waits, and routes each event
// to the handler whose session handle matches.
package events
