package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Measurer produces authoritative token counts. Implementations may call a
// remote tokenizer endpoint and can fail transiently.
type Measurer interface {
	Measure(ctx context.Context, text string) (int, error)
}

// MeasureFunc adapts a plain function to the Measurer interface.
type MeasureFunc func(ctx context.Context, text string) (int, error)

func (f MeasureFunc) Measure(ctx context.Context, text string) (int, error) {
	return f(ctx, text)
}

// DefaultMeasureRPM is a sensible per-minute cap for remote measurement
// backends. Local tokenizers need no cap.
const DefaultMeasureRPM = 10

// Meter wraps a Measurer with a content-hash cache and a rate limit so that
// repeated or bursty measurement of the same material stays cheap.
type Meter struct {
	measurer Measurer
	limiter  *rate.Limiter
	log      *slog.Logger

	mu    sync.Mutex
	cache map[string]int
}

// NewMeter builds a Meter around m. A nil m yields an estimate-only meter.
// rpm > 0 spaces backend calls to that many per minute; rpm <= 0 leaves
// them unthrottled.
func NewMeter(m Measurer, rpm int, log *slog.Logger) *Meter {
	if log == nil {
		log = slog.Default()
	}
	var limiter *rate.Limiter
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return &Meter{
		measurer: m,
		limiter:  limiter,
		log:      log,
		cache:    make(map[string]int),
	}
}

// Enabled reports whether authoritative measurement is available.
func (m *Meter) Enabled() bool {
	return m != nil && m.measurer != nil
}

// Measure returns the authoritative token count for text. Results are cached
// by content hash; backend calls are spaced out by the rate limit.
func (m *Meter) Measure(ctx context.Context, text string) (int, error) {
	if !m.Enabled() {
		return 0, fmt.Errorf("no token measurer configured")
	}

	key := hashText(text)
	m.mu.Lock()
	if n, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("measure rate limit: %w", err)
		}
	}
	n, err := m.measurer.Measure(ctx, text)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.cache[key] = n
	m.mu.Unlock()
	return n, nil
}

// Count returns the best available token count for text. When measurement is
// unavailable or fails, the estimate is returned and exact is false; the
// failure is logged rather than propagated so callers can keep going.
func (m *Meter) Count(ctx context.Context, text string) (n int, exact bool) {
	if !m.Enabled() {
		return Estimate(text), false
	}
	n, err := m.Measure(ctx, text)
	if err != nil {
		m.log.Warn("token measurement failed, using estimate", "error", err)
		return Estimate(text), false
	}
	return n, true
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
