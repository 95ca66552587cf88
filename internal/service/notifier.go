package service

import (
	"context"

	"github.com/kube-rca/auth-service/internal/model"
	"github.com/sirupsen/logrus"
)

// Notifier receives audit events. Implementations must not block the caller
// and must not fail it.
type Notifier interface {
	Notify(ctx context.Context, event model.AuditEvent)
}

// LogNotifier writes audit events to the local logger. It is the fallback
// when no remote log sink is configured.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event model.AuditEvent) {
	fields := logrus.Fields{"action": event.Action}
	if event.UserID != 0 {
		fields["user_id"] = event.UserID
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}
	n.log.WithFields(fields).Log(event.Level, event.Message)
}
