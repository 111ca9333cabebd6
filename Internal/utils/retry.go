package utils

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// RetryWithBackoff runs fn up to MaxAttempts times with exponential backoff.
// The last error is returned when every attempt fails.
func RetryWithBackoff(fn func() error, cfg RetryConfig) error {
	var err error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if attempt < cfg.MaxAttempts {
			log.Debugf("Attempt %d/%d failed: %v (retrying in %s)", attempt, cfg.MaxAttempts, err, delay)
			time.Sleep(delay)
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return err
}
