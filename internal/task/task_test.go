package task

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/session"
	"smartspeech-client/internal/smartspeech"
	"smartspeech-client/internal/smartspeech/smartspeechtest"
)

func newTestClient(t *testing.T, srv *smartspeechtest.Server) (*Client, *session.Session) {
	t.Helper()
	srv.Start()
	t.Cleanup(srv.Stop)

	s, err := session.New(
		session.Config{Address: "passthrough:///bufnet", Insecure: true},
		session.WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())),
		session.WithDialOptions(srv.DialOptions()...),
	)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return New(s.Conn(), 10*time.Millisecond), s
}

func TestClient_Get(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := &smartspeechtest.Server{
		RequestID: "srv-7",
		GetTask: func(_ context.Context, id string) (smartspeech.TaskInfo, error) {
			if id != "task-1" {
				return smartspeech.TaskInfo{}, status.Errorf(codes.NotFound, "task %s not found", id)
			}
			return smartspeech.TaskInfo{ID: id, Status: smartspeech.TaskStatusRunning, CreatedAt: created}, nil
		},
	}
	c, _ := newTestClient(t, srv)

	info, err := c.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.ID != "task-1" || info.Status != smartspeech.TaskStatusRunning || !info.CreatedAt.Equal(created) {
		t.Errorf("Get() = %+v", info)
	}

	_, err = c.Get(context.Background(), "missing")
	if status.Code(err) != codes.NotFound {
		t.Errorf("Get(missing) error = %v, want NotFound", err)
	}

	md := srv.Metadata()
	if len(md) == 0 || len(md[0].Get("x-request-id")) != 1 {
		t.Errorf("request id not sent: %v", md)
	}
}

func TestClient_Cancel(t *testing.T) {
	srv := &smartspeechtest.Server{
		CancelTask: func(_ context.Context, id string) (smartspeech.TaskInfo, error) {
			return smartspeech.TaskInfo{ID: id, Status: smartspeech.TaskStatusCanceled}, nil
		},
	}
	c, _ := newTestClient(t, srv)

	info, err := c.Cancel(context.Background(), "task-2")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if info.Status != smartspeech.TaskStatusCanceled {
		t.Errorf("status = %v, want CANCELED", info.Status)
	}
}

func TestClient_Wait(t *testing.T) {
	tests := []struct {
		name       string
		final      smartspeech.TaskInfo
		wantErr    error
		wantStatus smartspeech.TaskStatus
	}{
		{
			name:       "done",
			final:      smartspeech.TaskInfo{Status: smartspeech.TaskStatusDone, ResponseFileID: "file-1"},
			wantStatus: smartspeech.TaskStatusDone,
		},
		{
			name:       "error",
			final:      smartspeech.TaskInfo{Status: smartspeech.TaskStatusError, Error: "bad audio"},
			wantErr:    ErrTaskFailed,
			wantStatus: smartspeech.TaskStatusError,
		},
		{
			name:       "canceled",
			final:      smartspeech.TaskInfo{Status: smartspeech.TaskStatusCanceled},
			wantErr:    ErrTaskCanceled,
			wantStatus: smartspeech.TaskStatusCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var polls atomic.Int32
			srv := &smartspeechtest.Server{
				GetTask: func(_ context.Context, id string) (smartspeech.TaskInfo, error) {
					switch polls.Add(1) {
					case 1:
						return smartspeech.TaskInfo{ID: id, Status: smartspeech.TaskStatusNew}, nil
					case 2:
						return smartspeech.TaskInfo{ID: id, Status: smartspeech.TaskStatusRunning}, nil
					}
					final := tt.final
					final.ID = id
					return final, nil
				},
			}
			c, _ := newTestClient(t, srv)

			var seen []smartspeech.TaskStatus
			info, err := c.Wait(context.Background(), "task-3", func(i smartspeech.TaskInfo) {
				seen = append(seen, i.Status)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Wait() error = %v, want %v", err, tt.wantErr)
			}
			if info.Status != tt.wantStatus {
				t.Errorf("status = %v, want %v", info.Status, tt.wantStatus)
			}
			if len(seen) != 3 || seen[0] != smartspeech.TaskStatusNew || seen[1] != smartspeech.TaskStatusRunning {
				t.Errorf("polled states = %v", seen)
			}
		})
	}
}

func TestClient_WaitContextCanceled(t *testing.T) {
	srv := &smartspeechtest.Server{
		GetTask: func(_ context.Context, id string) (smartspeech.TaskInfo, error) {
			return smartspeech.TaskInfo{ID: id, Status: smartspeech.TaskStatusRunning}, nil
		},
	}
	c, _ := newTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx, "task-4", nil)
	if !errors.Is(err, context.DeadlineExceeded) && status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestClient_Download(t *testing.T) {
	srv := &smartspeechtest.Server{
		Download: func(_ context.Context, id string, send func(proto.Message) error) error {
			if id != "file-1" {
				return status.Error(codes.NotFound, "no file")
			}
			for _, part := range []string{`{"res`, `ults":[]}`} {
				if err := send(smartspeech.EncodeDownloadChunk([]byte(part))); err != nil {
					return err
				}
			}
			return nil
		},
	}
	c, s := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	n, err := c.Download(ctx, s, smartspeech.TaskInfo{ID: "task-5", ResponseFileID: "file-1"}, &out)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(out.Len()) || out.String() != `{"results":[]}` {
		t.Errorf("Download() = %d, %q", n, out.String())
	}

	out.Reset()
	_, err = c.Download(ctx, s, smartspeech.TaskInfo{ID: "task-6", ResponseFileID: "file-2"}, &out)
	if status.Code(err) != codes.NotFound {
		t.Errorf("Download(missing) error = %v, want NotFound", err)
	}

	if _, err := c.Download(ctx, s, smartspeech.TaskInfo{ID: "task-7"}, &out); !errors.Is(err, ErrNoResult) {
		t.Errorf("Download(no file) error = %v, want ErrNoResult", err)
	}
}
