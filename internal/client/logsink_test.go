package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingLogService struct {
	mu      sync.Mutex
	methods []string
	entries []*structpb.Struct
}

func (r *recordingLogService) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	var req structpb.Struct
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	r.mu.Lock()
	r.methods = append(r.methods, method)
	r.entries = append(r.entries, &req)
	r.mu.Unlock()
	return stream.SendMsg(&structpb.Struct{})
}

func (r *recordingLogService) snapshot() ([]string, []*structpb.Struct) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.methods...), append([]*structpb.Struct(nil), r.entries...)
}

func newTestLogSink(t *testing.T) (*LogSink, *recordingLogService) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	rec := &recordingLogService{}
	srv := grpc.NewServer(grpc.UnknownServiceHandler(rec.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	sink, err := NewLogSink(
		config.LogSinkConfig{Addr: "passthrough:///bufnet", ServiceName: "auth-service"},
		logrus.New(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	return sink, rec
}

func TestLogSinkSendsEvents(t *testing.T) {
	sink, rec := newTestLogSink(t)

	sink.Notify(context.Background(), model.AuditEvent{
		Time:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:    logrus.WarnLevel,
		Action:   "login_failed",
		Message:  "login rejected",
		UserID:   7,
		Metadata: map[string]any{"reason": "wrong password"},
	})
	require.NoError(t, sink.Close())

	methods, entries := rec.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, sendLogMethod, methods[0])

	fields := entries[0].AsMap()
	assert.Equal(t, "2026-01-02T03:04:05Z", fields["timestamp"])
	assert.Equal(t, "auth-service", fields["service_name"])
	assert.Equal(t, float64(2), fields["level"])
	assert.Equal(t, "login rejected", fields["message"])
	assert.Equal(t, `{"reason":"wrong password"}`, fields["metadata"])
	assert.Equal(t, float64(7), fields["user_id"])
	assert.Equal(t, "login_failed", fields["action"])
}

func TestLogSinkNotifyAfterClose(t *testing.T) {
	sink, rec := newTestLogSink(t)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	sink.Notify(context.Background(), model.AuditEvent{Level: logrus.InfoLevel, Action: "logout"})

	_, entries := rec.snapshot()
	assert.Empty(t, entries)
}

func TestSinkLevel(t *testing.T) {
	tests := []struct {
		level logrus.Level
		want  int
	}{
		{logrus.DebugLevel, 0},
		{logrus.InfoLevel, 1},
		{logrus.WarnLevel, 2},
		{logrus.ErrorLevel, 3},
		{logrus.FatalLevel, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sinkLevel(tt.level), tt.level.String())
	}
}

func TestNewLogSinkRequiresAddr(t *testing.T) {
	_, err := NewLogSink(config.LogSinkConfig{}, nil)
	require.Error(t, err)
}
