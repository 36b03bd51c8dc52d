package domain

// Job states reported by the command surface
const (
	StateRunning   = "running"
	StatePending   = "pending"
	StateCancelled = "cancelled"
)

// DefaultNotificationChannel is used when a request does not name a channel
const DefaultNotificationChannel = "BackgroundUploadChannel"
