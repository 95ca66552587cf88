package model

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is a side-channel record of something the auth core did. Sinks
// receive it best effort; nothing waits on delivery.
type AuditEvent struct {
	Time     time.Time
	Level    logrus.Level
	Action   string
	Message  string
	UserID   int64
	Metadata map[string]any
}
