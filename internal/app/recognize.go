package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"smartspeech-client/internal/audiofile"
	"smartspeech-client/internal/call"
	"smartspeech-client/internal/config"
	"smartspeech-client/internal/events"
	"smartspeech-client/internal/google"
	"smartspeech-client/internal/smartspeech"
)

// ErrNoBackend is returned when the Google provider is configured but no
// backend was supplied.
var ErrNoBackend = errors.New("google provider selected without a backend")

// settleTimeout bounds the wait for a cancelled call to reach Done.
const settleTimeout = 2 * time.Second

// RecognizeOptions controls one recognition run.
type RecognizeOptions struct {
	// Realtime paces feeding to the audio's playback rate. Only pcm16le
	// input is paced.
	Realtime bool
	// Google serves recognition when the provider is "google".
	Google *google.Backend
}

// RecognizeResult summarizes a finished recognition call.
type RecognizeResult struct {
	CallID      string
	BytesFed    int64
	Transcripts int
	Dropped     bool
}

// Recognize streams in as audio to the configured provider and prints each
// transcript to out. A WAV header, when present, overrides the configured
// encoding and sample rate.
func (a *Application) Recognize(ctx context.Context, in io.Reader, out io.Writer, ro RecognizeOptions) (RecognizeResult, error) {
	rc := a.Cfg.Recognition
	src, err := audiofile.Open(in)
	if err != nil {
		return RecognizeResult{}, err
	}
	if f := src.Format; f != nil {
		a.Logger.Info().
			Uint16("channels", f.Channels).
			Uint32("sampleRate", f.SampleRate).
			Uint16("bitsPerSample", f.BitsPerSample).
			Uint32("dataSize", f.DataSize).
			Msg("WAV input detected")
		rc.AudioEncoding = "pcm16le"
		rc.SampleRate = int(f.SampleRate)
	}

	opts, err := rc.Options()
	if err != nil {
		return RecognizeResult{}, err
	}

	res := RecognizeResult{CallID: uuid.NewString()}
	printer := &transcriptPrinter{out: out}
	sink := events.NewSink(a.Publisher, res.CallID, printer.handle)
	callOpts := call.Options{
		ID:           res.CallID,
		PollInterval: rc.PollInterval,
		MaxChunk:     rc.ChunkSize,
	}

	var c *call.DuplexCall
	switch rc.Provider {
	case config.ProviderGoogle:
		if ro.Google == nil {
			return res, ErrNoBackend
		}
		callOpts.Kind = "google-recognize"
		protocol := google.NewProtocol(google.FromRecognitionOptions(opts, rc.LanguageCode))
		c, err = a.Session.StartDuplex(ro.Google.Open(), protocol, sink.Handle, callOpts)
	default:
		c, err = a.Session.StartRecognition(opts, sink.Handle, callOpts)
	}
	if err != nil {
		return res, err
	}

	realtime := ro.Realtime
	if realtime && opts.AudioEncoding != smartspeech.EncodingPCM16LE {
		a.Logger.Warn().
			Str("encoding", rc.AudioEncoding).
			Msg("realtime pacing needs pcm16le input, feeding unpaced")
		realtime = false
	}
	res.BytesFed, err = feed(ctx, c, src, rc, realtime)
	c.SignalNoMoreInput()
	if err != nil {
		a.Logger.Warn().Err(err).Str("callId", res.CallID).Msg("reading audio failed, closing call")
	}
	a.Logger.Debug().
		Str("callId", res.CallID).
		Int64("bytes", res.BytesFed).
		Dur("audioDuration", chunkDuration(int(res.BytesFed), rc.SampleRate)).
		Msg("audio fed")

	if cerr := c.Close(ctx); cerr != nil {
		// The stream is cancelled; reads that already completed may still
		// reach the printer until the call settles.
		select {
		case <-c.Done():
		case <-time.After(settleTimeout):
			a.Logger.Warn().Str("callId", res.CallID).Msg("call did not settle after cancel")
		}
		res.Transcripts = printer.stop()
		return res, cerr
	}
	res.Transcripts = printer.stop()
	if res.Dropped = sink.Close(); res.Dropped {
		a.Logger.Warn().
			Str("callId", res.CallID).
			Str("utteranceId", sink.UtteranceID()).
			Msg("call ended with an unfinished utterance")
	}
	if err != nil {
		return res, err
	}
	return res, c.Err()
}

// transcriptPrinter is the terminal sink of a recognition call. It runs on
// the dispatcher goroutine while Recognize reads its count, and stops
// writing once Recognize has returned.
type transcriptPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	count   int
	stopped bool
}

func (p *transcriptPrinter) handle(t call.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.count++
	printTranscript(p.out, t)
}

func (p *transcriptPrinter) stop() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return p.count
}

func feed(ctx context.Context, c *call.DuplexCall, r io.Reader, rc config.RecognitionConfig, realtime bool) (int64, error) {
	var limiter *rate.Limiter
	if realtime {
		limiter = playbackLimiter(rc.SampleRate, rc.ChunkSize)
	}

	var total int64
	buf := make([]byte, rc.ChunkSize)
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			if limiter != nil {
				if werr := limiter.WaitN(ctx, n); werr != nil {
					return total, werr
				}
			}
			if ferr := c.Feed(buf[:n]); ferr != nil {
				return total, ferr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// playbackLimiter admits 16-bit mono PCM bytes at the rate they play back.
// Nil when the sample rate is unknown.
func playbackLimiter(sampleRate, chunkSize int) *rate.Limiter {
	if sampleRate <= 0 || chunkSize <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(2*sampleRate), chunkSize)
}

// chunkDuration is the playback time of n bytes of 16-bit mono PCM.
func chunkDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(2*sampleRate)
}

func printTranscript(out io.Writer, t call.Transcript) {
	if !t.EOU {
		fmt.Fprintf(out, "partial: %s\n", t.Text)
		return
	}
	fmt.Fprintf(out, "final: %s\n", t.Text)
	if t.NormalizedText != "" && t.NormalizedText != t.Text {
		fmt.Fprintf(out, "  normalized: %s\n", t.NormalizedText)
	}
	for i, h := range t.Hypotheses[min(1, len(t.Hypotheses)):] {
		fmt.Fprintf(out, "  alt %d: %s\n", i+1, h.Text)
	}
	if e := t.Emotions; e != nil {
		fmt.Fprintf(out, "  emotions: positive=%.2f neutral=%.2f negative=%.2f\n", e.Positive, e.Neutral, e.Negative)
	}
}
