package memory

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(window time.Duration, hourlyCap int) (*Limiter, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(window, hourlyCap)
	l.now = c.now
	return l, c
}

func TestLimiter_Window(t *testing.T) {
	l, c := newTestLimiter(30*time.Second, 10)
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "t1", "fp"); !d.Allowed {
		t.Fatal("first submission should pass")
	}
	d, _ := l.Allow(ctx, "t1", "fp")
	if d.Allowed || d.Reason != ReasonWindow || d.RetryAfter != 30*time.Second {
		t.Fatalf("second = %+v", d)
	}

	c.advance(30 * time.Second)
	if d, _ := l.Allow(ctx, "t1", "fp"); !d.Allowed {
		t.Fatal("expected allowed after the window")
	}
}

func TestLimiter_HourlyCap(t *testing.T) {
	l, c := newTestLimiter(time.Second, 3)
	ctx := context.Background()

	for i := range 3 {
		if d, _ := l.Allow(ctx, "t1", "fp"); !d.Allowed {
			t.Fatalf("submission %d refused", i)
		}
		c.advance(time.Minute)
	}
	d, _ := l.Allow(ctx, "t1", "fp")
	if d.Allowed || d.Reason != ReasonHourly {
		t.Fatalf("fourth = %+v", d)
	}
	// The oldest entry was 3 minutes ago; it ages out 57 minutes from now.
	if d.RetryAfter != 57*time.Minute {
		t.Fatalf("retry after = %v", d.RetryAfter)
	}

	c.advance(57 * time.Minute)
	if d, _ := l.Allow(ctx, "t1", "fp"); !d.Allowed {
		t.Fatal("expected allowed once the oldest entry ages out")
	}
}

func TestLimiter_ScopedKeys(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 10)
	ctx := context.Background()

	tests := []struct {
		tenant, fp string
		want       bool
	}{
		{"t1", "fp", true},
		{"t1", "fp", false},
		{"t2", "fp", true},
		{"t1", "other", true},
	}
	for i, tt := range tests {
		d, err := l.Allow(ctx, tt.tenant, tt.fp)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed != tt.want {
			t.Errorf("case %d (%s/%s): allowed = %v, want %v", i, tt.tenant, tt.fp, d.Allowed, tt.want)
		}
	}

	if _, err := l.Allow(ctx, "", "fp"); err == nil {
		t.Error("expected error for missing tenant")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, c := newTestLimiter(time.Second, 10)
	_, _ = l.Allow(context.Background(), "t1", "fp")
	c.advance(2 * time.Hour)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
}
