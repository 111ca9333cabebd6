package broker

import (
	"errors"
	"net"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// ErrorClass splits broker failures into the two ways the session loop
// reacts: retry the call on the next cycle, or halt and alert the operator.
type ErrorClass int

const (
	Retryable ErrorClass = iota
	Fatal
)

func (c ErrorClass) String() string {
	if c == Fatal {
		return "FATAL"
	}
	return "RETRYABLE"
}

// Classify buckets an error from the Alpaca client. Rate limits, timeouts and
// server-side failures are retryable; credential and order-rejection errors
// require operator intervention.
func Classify(err error) ErrorClass {
	if err == nil {
		return Retryable
	}

	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return Retryable
		case apiErr.StatusCode >= 500:
			return Retryable
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return Fatal
		case apiErr.StatusCode == 422:
			// Rejected order (insufficient buying power, bad params).
			return Fatal
		default:
			return Retryable
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}

	return Retryable
}
