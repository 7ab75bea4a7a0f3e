package serial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// RetryConfig bounds how long OpenWithRetry keeps trying a busy or missing
// device
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	RetryInterval time.Duration `json:"retry_interval"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxInterval   time.Duration `json:"max_interval"`
}

// DefaultRetryConfig waits 1s, 2s and 4s between four attempts
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		RetryInterval: time.Second,
		BackoffFactor: 2.0,
		MaxInterval:   10 * time.Second,
	}
}

func (r RetryConfig) Validate() error {
	switch {
	case r.MaxRetries < 0:
		return fmt.Errorf("max retries %d is negative", r.MaxRetries)
	case r.RetryInterval < 0:
		return fmt.Errorf("retry interval %v is negative", r.RetryInterval)
	case r.BackoffFactor < 1.0:
		return fmt.Errorf("backoff factor %g is below 1", r.BackoffFactor)
	case r.MaxInterval < r.RetryInterval:
		return fmt.Errorf("max interval %v is below the retry interval %v", r.MaxInterval, r.RetryInterval)
	}
	return nil
}

// delay returns the wait before retry number n, counted from 1
func (r RetryConfig) delay(n int) time.Duration {
	d := r.RetryInterval
	for i := 1; i < n && d < r.MaxInterval; i++ {
		d = time.Duration(float64(d) * r.BackoffFactor)
	}
	return min(d, r.MaxInterval)
}

// OpenWithRetry opens port, retrying with exponential backoff while the
// failure looks transient. It gives up early when ctx is cancelled.
func OpenWithRetry(ctx context.Context, port Port, config SerialConfig, retry RetryConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}

	err := port.Open(config)
	for n := 1; err != nil && n <= retry.MaxRetries && isRecoverableError(err); n++ {
		timer := time.NewTimer(retry.delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = port.Open(config)
	}

	if err != nil {
		return fmt.Errorf("opening %s: %w", config.Port, err)
	}
	return nil
}

var transientMessages = []string{
	"device busy",
	"resource temporarily unavailable",
	"no such device",
}

// isRecoverableError reports whether opening again may succeed
func isRecoverableError(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortBusy || portErr.Code() == serial.PortNotFound
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
