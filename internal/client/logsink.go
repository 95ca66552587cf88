// Remote log sink client (gRPC)
//
// Env:
//   - LOG_SINK_ADDR (empty disables the sink)
//   - LOG_SINK_SERVICE_NAME (default: auth-service)
//
// Calls /logservice.LogService/SendLog with a google.protobuf.Struct payload:
// timestamp, service_name, level, message, metadata (JSON), user_id, action.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	sendLogMethod     = "/logservice.LogService/SendLog"
	logSinkBufferSize = 256
	logSinkTimeout    = 3 * time.Second
)

// LogSink ships audit events to the log service from a background worker.
// Notify never blocks; events are dropped when the buffer is full.
type LogSink struct {
	conn        *grpc.ClientConn
	serviceName string
	log         logrus.FieldLogger

	events chan model.AuditEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewLogSink(cfg config.LogSinkConfig, log logrus.FieldLogger, opts ...grpc.DialOption) (*LogSink, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("log sink address is empty")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, err
	}

	s := &LogSink{
		conn:        conn,
		serviceName: cfg.ServiceName,
		log:         log.WithField("component", "log_sink"),
		events:      make(chan model.AuditEvent, logSinkBufferSize),
		done:        make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *LogSink) Notify(_ context.Context, event model.AuditEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.log.WithField("action", event.Action).Warn("log sink buffer full, dropping event")
	}
}

// Close flushes buffered events and closes the connection.
func (s *LogSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
	return s.conn.Close()
}

func (s *LogSink) run() {
	defer close(s.done)
	for event := range s.events {
		if err := s.send(event); err != nil {
			s.log.WithError(err).WithField("action", event.Action).Warn("failed to send log event")
		}
	}
}

func (s *LogSink) send(event model.AuditEvent) error {
	payload, err := s.payload(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), logSinkTimeout)
	defer cancel()
	return s.conn.Invoke(ctx, sendLogMethod, payload, &structpb.Struct{})
}

func (s *LogSink) payload(event model.AuditEvent) (*structpb.Struct, error) {
	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	metadata := "{}"
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = string(b)
	}
	return structpb.NewStruct(map[string]any{
		"timestamp":    ts.UTC().Format(time.RFC3339Nano),
		"service_name": s.serviceName,
		"level":        sinkLevel(event.Level),
		"message":      event.Message,
		"metadata":     metadata,
		"user_id":      event.UserID,
		"action":       event.Action,
	})
}

// sinkLevel maps logrus levels onto the log service's numeric levels:
// DEBUG=0, INFO=1, WARNING=2, ERROR=3, CRITICAL=4.
func sinkLevel(level logrus.Level) int {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return 0
	case logrus.WarnLevel:
		return 2
	case logrus.ErrorLevel:
		return 3
	case logrus.FatalLevel, logrus.PanicLevel:
		return 4
	default:
		return 1
	}
}
