package feedsync

import (
	"errors"
	"fmt"
	"testing"
)

func TestBeginIdempotencyStatus(t *testing.T) {
	cases := []struct {
		name string
		skip bool
		err  error
		want int
	}{
		{"succeeded duplicate acks", true, nil, 204},
		{"guard error acks for redelivery via fresh push", false, errors.New("db down"), 204},
		{"in-progress does not ack", false, ErrIdempotencyInProgress, 409},
		{"wrapped in-progress does not ack", false, fmt.Errorf("guard: %w", ErrIdempotencyInProgress), 409},
	}
	for _, tc := range cases {
		if got := beginIdempotencyStatus(tc.skip, tc.err); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}
