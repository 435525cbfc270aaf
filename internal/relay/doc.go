// Package relay serves the most recent liveview packets over HTTP and pushes
// every packet to WebSocket viewers.
//
// Ownership boundary:
// - latest image/focus/playback snapshot
// - viewer fan-out (/ws)
// - health, readiness and metrics routes
package relay
