// Package watchdog provides a generic periodic-operation primitive with
// an independent liveness watchdog.
//
// A Watchdog does two decoupled things on one goroutine:
//
//   - runs a caller-supplied operation every interval ("are we still
//     trying")
//   - declares the tracked subject Down if no Up signal arrives within
//     the watchdog timeout ("is the subject healthy")
//
// A Down transition never stops the periodic loop; the operation keeps
// running so the subject can be rediscovered. Up resets both timers, so
// fresh evidence of life also defers the next poll.
//
// The appliance coordinator uses this to poll the device for current
// state while tracking whether any inbound traffic has been seen.
package watchdog
