package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	errBoom := errors.New("boom")

	testCases := []struct {
		name      string
		attempts  int
		failUntil int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first try", 3, 0, false, 1, false},
		{"succeeds on last try", 3, 2, false, 3, false},
		{"exhausts attempts", 3, 10, false, 3, true},
		{"single attempt", 1, 10, false, 1, true},
		{"permanent stops immediately", 3, 10, true, 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			notified := 0
			err := Do(context.Background(), fastPolicy(tc.attempts), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("Expected attempt %d, got %d", calls, attempt)
				}
				if calls <= tc.failUntil {
					if tc.permanent {
						return Permanent(errBoom)
					}
					return errBoom
				}
				return nil
			}, func(error, time.Duration) { notified++ })

			if calls != tc.wantCalls {
				t.Errorf("Expected %d calls, got %d", tc.wantCalls, calls)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("Expected error=%v, got %v", tc.wantErr, err)
			}
			if err != nil && !errors.Is(err, errBoom) {
				t.Errorf("Expected the operation error, got %v", err)
			}
			if notified != calls-1 && !tc.permanent && err == nil {
				t.Errorf("Expected %d notifications, got %d", calls-1, notified)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 100, InitialInterval: 5 * time.Millisecond}, func(int) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)

	if err == nil {
		t.Fatal("Expected an error after cancel")
	}
	if calls != 1 {
		t.Errorf("Expected to stop after cancel, got %d calls", calls)
	}
}
