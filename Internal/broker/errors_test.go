package broker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, Retryable},
		{"rate limit", &alpaca.APIError{StatusCode: 429}, Retryable},
		{"server error", &alpaca.APIError{StatusCode: 503}, Retryable},
		{"bad credentials", &alpaca.APIError{StatusCode: 401}, Fatal},
		{"forbidden", &alpaca.APIError{StatusCode: 403}, Fatal},
		{"rejected order", &alpaca.APIError{StatusCode: 422}, Fatal},
		{"wrapped api error", fmt.Errorf("placing order: %w", &alpaca.APIError{StatusCode: 422}), Fatal},
		{"plain error", errors.New("connection reset"), Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
