package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
)

// Config holds HTTP stack settings for the executor
type Config struct {
	FollowRedirects          bool
	RetryOnConnectionFailure bool
	ConnectTimeout           time.Duration
	ReadTimeout              time.Duration
	RetryDelay               time.Duration
	BackoffMultiplier        float64
}

// DefaultConfig returns the HTTP stack defaults
func DefaultConfig() Config {
	return Config{
		FollowRedirects:          true,
		RetryOnConnectionFailure: true,
		ConnectTimeout:           45 * time.Second,
		ReadTimeout:              90 * time.Second,
		RetryDelay:               time.Second,
		BackoffMultiplier:        2.0,
	}
}

// progressStep is the minimum number of bytes between two progress events
const progressStep = 64 * 1024

// statusError is returned when the server answers with an error status
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server responded with status %d", e.code)
}

// fileError wraps failures to read the files of a job; they are never retried
type fileError struct {
	err error
}

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

// HTTPExecutor uploads job files over HTTP
type HTTPExecutor struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// NewHTTPExecutor creates an executor with its own HTTP client
func NewHTTPExecutor(config Config, logger *slog.Logger) *HTTPExecutor {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	client := &http.Client{Transport: transport}
	if !config.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &HTTPExecutor{
		client: client,
		config: config,
		logger: logger,
	}
}

// Execute uploads the job, retrying up to job.MaxRetries times
func (e *HTTPExecutor) Execute(ctx context.Context, job domain.Job, events chan<- Event) {
	log := e.logger.With(slog.String("job_id", job.ID))

	attempts := job.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt - 1)
			log.Warn("Upload failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("retry_after", delay),
				slog.Any("error", lastErr),
			)
			if !sleep(ctx, delay) {
				log.Info("Upload cancelled while waiting to retry")
				events <- Completed(job.ID, OutcomeCancelled)
				return
			}
		}

		err := e.attempt(ctx, job, events)
		if err == nil {
			log.Info("Upload completed successfully", slog.Int("attempt", attempt+1))
			events <- Completed(job.ID, OutcomeSucceeded)
			return
		}
		if ctx.Err() != nil {
			log.Info("Upload cancelled")
			events <- Completed(job.ID, OutcomeCancelled)
			return
		}

		lastErr = err
		if !e.retryable(err) {
			break
		}
	}

	log.Error("Upload failed", slog.Any("error", lastErr))
	events <- Failed(job.ID, fmt.Errorf("%w: %v", domain.ErrTransport, lastErr))
	events <- Completed(job.ID, OutcomeFailed)
}

// attempt performs a single HTTP exchange
func (e *HTTPExecutor) attempt(ctx context.Context, job domain.Job, events chan<- Event) error {
	payload, err := newBody(job)
	if err != nil {
		return &fileError{err: err}
	}
	defer payload.Close()

	body := &progressReader{
		r:      payload,
		jobID:  job.ID,
		total:  payload.total,
		events: events,
	}
	defer body.stop()

	req, err := http.NewRequestWithContext(ctx, job.Method, job.URL, body)
	if err != nil {
		return &fileError{err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.ContentLength = payload.length
	req.Header.Set("Content-Type", payload.contentType)
	for name, value := range job.Headers {
		req.Header.Set(name, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= http.StatusBadRequest {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

func (e *HTTPExecutor) retryable(err error) bool {
	var fe *fileError
	if errors.As(err, &fe) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}

	return e.config.RetryOnConnectionFailure
}

// backoff returns the delay before retry n (0-indexed)
func (e *HTTPExecutor) backoff(n int) time.Duration {
	mult := e.config.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}

	delay := float64(e.config.RetryDelay)
	for i := 0; i < n; i++ {
		delay *= mult
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// progressReader emits progress events as the request body is consumed. The
// HTTP transport may still read from it after the response arrived, so stop
// fences off any send once the attempt has returned.
type progressReader struct {
	mu       sync.Mutex
	stopped  bool
	r        io.Reader
	jobID    string
	total    int64
	read     int64
	reported int64
	events   chan<- Event
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return n, err
	}
	p.read += int64(n)
	if p.read-p.reported >= progressStep || (err == io.EOF && p.read > p.reported) {
		p.reported = p.read
		p.events <- Progress(p.jobID, p.read, p.total)
	}
	return n, err
}

func (p *progressReader) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}
