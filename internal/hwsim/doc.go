// Package hwsim simulates the camera hardware camerad drives: a frame
// clock per sensor session, the request manager's queue, ISP buffer
// completion and a scene whose brightness follows the applied exposure.
//
// Rig implements events.Source and the register transport; each Camera
// implements the request manager for its session. Faults can be injected
// to exercise recovery: a skipped hardware frame every N frames, a dropped
// request every N requests, and a single stall after N frames.
package hwsim
