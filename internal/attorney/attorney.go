// Package attorney validates and normalizes user-supplied options before
// any worker or database call is made. It is a pure package: every function
// here either returns a normalized value or an error, and never touches the
// network, the clock source passed to it aside, or any other package's
// state.
package attorney

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Sentinel errors. Callers should match with errors.Is.
var (
	ErrMissingName     = errors.New("attorney: name must not be empty")
	ErrCallablePayload = errors.New("attorney: payload must not be a function or channel")
	ErrInvalidInterval = errors.New("attorney: interval out of range")
	ErrInvalidTeamSize = errors.New("attorney: teamSize must be >= 1")
)

const (
	// MinNewJobCheckInterval is the smallest poll interval a worker may use.
	MinNewJobCheckInterval = 200 * time.Millisecond
	// MaxNewJobCheckInterval is the largest poll interval a worker may use.
	MaxNewJobCheckInterval = 5 * time.Minute
	// DefaultNewJobCheckInterval matches the source's implicit default.
	DefaultNewJobCheckInterval = 2 * time.Second
	// DefaultExpireIn is used when PublishOptions.ExpireIn is unset.
	DefaultExpireIn = 15 * time.Minute
	// DefaultTeamSize is used when SubscribeOptions.TeamSize is unset (0).
	DefaultTeamSize = 1
)

// ValidateName rejects empty queue/channel names.
func ValidateName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	return nil
}

// ValidatePayload rejects payloads that cannot be meaningfully persisted:
// functions and channels have no JSON representation and are the Go
// analogue of the source's "callable" rejection.
func ValidatePayload(data any) error {
	if data == nil {
		return nil
	}
	switch reflect.ValueOf(data).Kind() {
	case reflect.Func, reflect.Chan:
		return ErrCallablePayload
	default:
		return nil
	}
}

// NewJobCheckIntervalInput is the raw, possibly-zero subset of
// SubscribeOptions that ApplyNewJobCheckInterval normalizes.
type NewJobCheckIntervalInput struct {
	NewJobCheckInterval        time.Duration // milliseconds precision, as supplied
	NewJobCheckIntervalSeconds float64
}

// ApplyNewJobCheckInterval resolves the canonical polling interval for a
// subscription: NewJobCheckInterval takes precedence over
// NewJobCheckIntervalSeconds; if neither is set, DefaultNewJobCheckInterval
// is used. The result is range-checked against
// [MinNewJobCheckInterval, MaxNewJobCheckInterval].
func ApplyNewJobCheckInterval(in NewJobCheckIntervalInput) (time.Duration, error) {
	interval := in.NewJobCheckInterval
	if interval == 0 && in.NewJobCheckIntervalSeconds > 0 {
		interval = time.Duration(in.NewJobCheckIntervalSeconds * float64(time.Second))
	}
	if interval == 0 {
		interval = DefaultNewJobCheckInterval
	}
	if interval < MinNewJobCheckInterval || interval > MaxNewJobCheckInterval {
		return 0, fmt.Errorf("%w: %s (allowed [%s, %s])", ErrInvalidInterval, interval, MinNewJobCheckInterval, MaxNewJobCheckInterval)
	}
	return interval, nil
}

// ApplyTeamSize resolves the number of workers to spawn for a subscription.
// Zero means "not set" and resolves to DefaultTeamSize; negative is rejected.
func ApplyTeamSize(teamSize int) (int, error) {
	if teamSize == 0 {
		return DefaultTeamSize, nil
	}
	if teamSize < 1 {
		return 0, ErrInvalidTeamSize
	}
	return teamSize, nil
}

// ApplyExpireIn resolves the visibility window for a published job.
func ApplyExpireIn(expireIn time.Duration) time.Duration {
	if expireIn <= 0 {
		return DefaultExpireIn
	}
	return expireIn
}

// SingletonSeconds is the first non-zero of the four singleton interval
// options, converted to a uniform number of seconds. Zero means "no
// singleton bucket size was requested".
func SingletonSeconds(seconds, minutes, hours, days float64) float64 {
	switch {
	case seconds > 0:
		return seconds
	case minutes > 0:
		return minutes * 60
	case hours > 0:
		return hours * 3600
	case days > 0:
		return days * 86400
	default:
		return 0
	}
}

// Bucket returns floor(t / singletonSeconds), the throttling window index
// for t, offset by offsetSeconds before flooring (mirrors the source's
// singletonOffset semantics: it shifts which bucket a given instant falls
// into, it does not change the bucket width).
func Bucket(t time.Time, singletonSeconds, offsetSeconds float64) int64 {
	if singletonSeconds <= 0 {
		return 0
	}
	shifted := t.Add(time.Duration(offsetSeconds * float64(time.Second)))
	return int64(float64(shifted.Unix()) / singletonSeconds)
}

// BucketBoundary returns the absolute instant a bucket index maps to, i.e.
// the value stored in Job.SingletonOn.
func BucketBoundary(bucket int64, singletonSeconds float64) time.Time {
	return time.Unix(int64(float64(bucket)*singletonSeconds), 0).UTC()
}
