package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordedSleep captures backoff waits instead of spending wall-clock time.
type recordedSleep struct {
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestNew_Defaults(t *testing.T) {
	p := New(0, -1)
	if p.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", p.MaxAttempts, DefaultMaxAttempts)
	}
	if p.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", p.BaseDelay, DefaultBaseDelay)
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	p := New(3, time.Second)
	rec := &recordedSleep{}
	p.SetSleep(rec.sleep)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(rec.waits) != 0 {
		t.Errorf("waits = %v, want none", rec.waits)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	p := New(3, time.Second)
	rec := &recordedSleep{}
	p.SetSleep(rec.sleep)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, func(error) Classification { return Transient })
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// Backoff doubles: 1s before attempt 2, 2s before attempt 3.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, rec.waits[i], want[i])
		}
	}
}

func TestDo_PermanentShortCircuits(t *testing.T) {
	p := New(3, time.Second)
	rec := &recordedSleep{}
	p.SetSleep(rec.sleep)

	permanent := errors.New("constraint violation")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, func(error) Classification { return Permanent })

	if !errors.Is(err, permanent) {
		t.Errorf("Do() error = %v, want the permanent error", err)
	}
	if errors.Is(err, ErrAttemptsExhausted) {
		t.Error("permanent error must not be wrapped in ErrAttemptsExhausted")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent)", calls)
	}
	if len(rec.waits) != 0 {
		t.Errorf("waits = %v, want none", rec.waits)
	}
}

func TestDo_ExhaustionWrapsFinalError(t *testing.T) {
	p := New(3, time.Second)
	p.SetSleep((&recordedSleep{}).sleep)

	cause := errors.New("database is locked")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, func(error) Classification { return Transient })

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("Do() error = %v, want ErrAttemptsExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Do() error = %v, should preserve the final cause", err)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	p := New(3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	p.SetSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("busy")
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled during first backoff)", calls)
	}
}

func TestDo_NilClassifierTreatsErrorsAsTransient(t *testing.T) {
	p := New(2, time.Second)
	p.SetSleep((&recordedSleep{}).sleep)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("flaky")
	}, nil)

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Errorf("Do() error = %v, want ErrAttemptsExhausted", err)
	}
}
