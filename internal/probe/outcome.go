package probe

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hazz-dev/watchdog/internal/storage"
)

// MaxErrorLen caps the stored failure description, in characters.
const MaxErrorLen = 300

// Outcome is the result of one probe: either Success or Failure.
type Outcome interface {
	// Result converts the outcome into the record written to the store.
	Result(targetID string, checkedAt time.Time) storage.Result
	isOutcome()
}

// Success is a completed request with a status in [200, 400).
type Success struct {
	StatusCode int
	Elapsed    time.Duration
}

// Failure is anything else: a non-2xx/3xx status, timeout, DNS or
// connection error, or a malformed request. Reason is already truncated.
type Failure struct {
	Reason string
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// ElapsedMs is the elapsed time in fractional milliseconds.
func (s Success) ElapsedMs() float64 {
	return float64(s.Elapsed) / float64(time.Millisecond)
}

func (s Success) Result(targetID string, checkedAt time.Time) storage.Result {
	code := s.StatusCode
	elapsed := s.ElapsedMs()
	return storage.Result{
		TargetID:   targetID,
		CheckedAt:  checkedAt.UTC(),
		Success:    true,
		StatusCode: &code,
		ElapsedMs:  &elapsed,
	}
}

func (f Failure) Result(targetID string, checkedAt time.Time) storage.Result {
	reason := f.Reason
	return storage.Result{
		TargetID:  targetID,
		CheckedAt: checkedAt.UTC(),
		Error:     &reason,
	}
}

func (s Success) String() string {
	return fmt.Sprintf("success status=%d elapsed=%s", s.StatusCode, s.Elapsed.Round(time.Millisecond))
}

func (f Failure) String() string {
	return "failure: " + f.Reason
}

// failure builds a Failure with the reason truncated to MaxErrorLen characters.
func failure(format string, args ...any) Failure {
	return Failure{Reason: truncate(fmt.Sprintf(format, args...), MaxErrorLen)}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
