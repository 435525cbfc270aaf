// Package liveview decodes a camera liveview feed delivered as one long-lived
// HTTP streaming response.
//
// Ownership boundary:
// - byte-exact reads from the response body
// - frame demultiplexing into image, focus-region and playback packets
// - connection state (closed -> connecting -> connected -> closed)
//
// Packets are delivered to a single Handler set at construction. Parse
// failures end the read loop and surface only as Handler.OnClosed.
package liveview
