package app

import (
	"context"
	"io"
	"sync"
	"time"

	"smartspeech-client/internal/call"
)

// SynthesizeResult summarizes a finished synthesis call.
type SynthesizeResult struct {
	Chunks   int
	Bytes    int64
	Duration time.Duration
}

// Synthesize sends text with the configured synthesis settings and writes
// the returned audio to out.
func (a *Application) Synthesize(ctx context.Context, text string, out io.Writer) (SynthesizeResult, error) {
	opts, err := a.Cfg.Synthesis.Options(text)
	if err != nil {
		return SynthesizeResult{}, err
	}

	var (
		mu       sync.Mutex
		res      SynthesizeResult
		writeErr error
	)
	sink := func(chunk call.Chunk) {
		mu.Lock()
		defer mu.Unlock()
		if chunk.End || writeErr != nil {
			return
		}
		n, err := out.Write(chunk.Data)
		res.Chunks++
		res.Bytes += int64(n)
		res.Duration += chunk.Duration
		writeErr = err
	}

	c, err := a.Session.StartSynthesis(opts, sink, call.Options{})
	if err != nil {
		return SynthesizeResult{}, err
	}
	if err := c.Close(ctx); err != nil {
		return SynthesizeResult{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return res, writeErr
	}
	a.Logger.Info().
		Str("callId", c.ID()).
		Int("chunks", res.Chunks).
		Int64("bytes", res.Bytes).
		Dur("audioDuration", res.Duration).
		Msg("synthesis written")
	return res, c.Err()
}
