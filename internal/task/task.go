// Package task queries and cancels asynchronous recognition tasks and
// downloads their results.
package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"smartspeech-client/internal/call"
	"smartspeech-client/internal/observability"
	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/smartspeech"
)

// DefaultPollInterval is the delay between two GetTask calls in Wait.
const DefaultPollInterval = 5 * time.Second

var (
	// ErrTaskFailed is returned by Wait when the task ended with ERROR.
	ErrTaskFailed = errors.New("task failed")
	// ErrTaskCanceled is returned by Wait when the task was canceled.
	ErrTaskCanceled = errors.New("task canceled")
	// ErrNoResult is returned when a finished task has no result file.
	ErrNoResult = errors.New("task has no response file")
)

// Downloader starts storage downloads. *session.Session implements it.
type Downloader interface {
	StartDownload(responseFileID string, sink call.ChunkSink, opts call.Options) (*call.ReadCall, error)
}

// Client calls the task service.
type Client struct {
	conn     grpc.ClientConnInterface
	interval time.Duration
	log      zerolog.Logger
}

// New creates a task client. interval <= 0 selects DefaultPollInterval.
func New(conn grpc.ClientConnInterface, interval time.Duration) *Client {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Client{
		conn:     conn,
		interval: interval,
		log:      logging.WithComponent("task"),
	}
}

// Get returns the current state of a task.
func (c *Client) Get(ctx context.Context, taskID string) (smartspeech.TaskInfo, error) {
	return c.invoke(ctx, smartspeech.GetTaskMethod, smartspeech.NewGetTaskRequest(taskID))
}

// Cancel asks the service to cancel a task and returns its new state.
func (c *Client) Cancel(ctx context.Context, taskID string) (smartspeech.TaskInfo, error) {
	return c.invoke(ctx, smartspeech.CancelTaskMethod, smartspeech.NewCancelTaskRequest(taskID))
}

func (c *Client) invoke(ctx context.Context, method string, req any) (smartspeech.TaskInfo, error) {
	var header metadata.MD
	resp := smartspeech.NewTask()
	if err := c.conn.Invoke(ctx, method, req, resp, grpc.Header(&header)); err != nil {
		return smartspeech.TaskInfo{}, err
	}

	info, err := smartspeech.DecodeTask(resp)
	if err != nil {
		return smartspeech.TaskInfo{}, err
	}

	var requestID string
	if ids := header.Get(observability.RequestIDHeader); len(ids) > 0 {
		requestID = ids[0]
	}
	c.log.Debug().
		Str("method", method).
		Str("taskId", info.ID).
		Str("status", info.Status.String()).
		Str("requestId", requestID).
		Msg("task state received")
	return info, nil
}

// Wait polls the task until it reaches a terminal status. onPoll, when not
// nil, sees every intermediate state. A task that ended with ERROR or
// CANCELED is returned together with ErrTaskFailed or ErrTaskCanceled.
func (c *Client) Wait(ctx context.Context, taskID string, onPoll func(smartspeech.TaskInfo)) (smartspeech.TaskInfo, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return smartspeech.TaskInfo{}, ctx.Err()
		case <-ticker.C:
		}

		info, err := c.Get(ctx, taskID)
		if err != nil {
			return smartspeech.TaskInfo{}, err
		}
		if onPoll != nil {
			onPoll(info)
		}

		switch info.Status {
		case smartspeech.TaskStatusDone:
			return info, nil
		case smartspeech.TaskStatusError:
			return info, fmt.Errorf("%w: %s", ErrTaskFailed, info.Error)
		case smartspeech.TaskStatusCanceled:
			return info, ErrTaskCanceled
		}
	}
}

// Download streams the result file of a finished task into w and returns
// the number of bytes written.
func (c *Client) Download(ctx context.Context, d Downloader, info smartspeech.TaskInfo, w io.Writer) (int64, error) {
	if info.ResponseFileID == "" {
		return 0, ErrNoResult
	}

	var (
		mu       sync.Mutex
		written  int64
		writeErr error
	)
	sink := func(chunk call.Chunk) {
		mu.Lock()
		defer mu.Unlock()
		if chunk.End || writeErr != nil {
			return
		}
		n, err := w.Write(chunk.Data)
		written += int64(n)
		writeErr = err
	}

	rc, err := d.StartDownload(info.ResponseFileID, sink, call.Options{})
	if err != nil {
		return 0, err
	}
	if err := rc.Close(ctx); err != nil {
		return 0, err
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return written, fmt.Errorf("write result: %w", writeErr)
	}
	if err := rc.Err(); err != nil {
		return written, err
	}
	c.log.Info().
		Str("taskId", info.ID).
		Str("responseFileId", info.ResponseFileID).
		Int64("bytes", written).
		Msg("task result downloaded")
	return written, nil
}
