package realtime

import "time"

// Security/performance limits for the watch channel.
const (
	// Max bytes per websocket frame read. Watch clients send nothing
	// meaningful, so the budget is tiny.
	maxFrameBytes = 4 << 10 // 4 KiB

	// Per-watch bounded send queue. Updates carry the full session list,
	// so a short queue is enough; the newest snapshot supersedes older ones.
	defaultSendQueueSize = 16
	minSendQueueSize     = 4
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)
