package connpool_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/reddit/searchbp.go/connection"
	"github.com/reddit/searchbp.go/connpool"
)

func TestBasicGetConnection(t *testing.T) {
	now := time.Now()
	alive := connection.Health{Status: connection.StatusAlive}
	resting := connection.Health{
		Status:           connection.StatusDead,
		DeadCount:        1,
		ResurrectTimeout: now.Add(time.Hour),
	}
	resurrectable := connection.Health{
		Status:           connection.StatusDead,
		DeadCount:        3,
		ResurrectTimeout: now.Add(-time.Second),
	}
	none := func(*connection.Connection) bool { return false }
	notA := func(c *connection.Connection) bool { return c.ID() != urlA }

	for _, c := range []struct {
		label  string
		health [2]connection.Health
		filter connpool.Filter
		want   []string
	}{
		{
			label:  "all-alive",
			health: [2]connection.Health{alive, alive},
			want:   []string{urlA, urlB},
		},
		{
			label:  "skip-resting",
			health: [2]connection.Health{alive, resting},
			want:   []string{urlA},
		},
		{
			label:  "resurrectable",
			health: [2]connection.Health{resting, resurrectable},
			want:   []string{urlB},
		},
		{
			label:  "all-resting",
			health: [2]connection.Health{resting, resting},
			want:   []string{urlA, urlB},
		},
		{
			label:  "filter",
			health: [2]connection.Health{alive, alive},
			filter: notA,
			want:   []string{urlB},
		},
		{
			label:  "filter-before-fallback",
			health: [2]connection.Health{resting, resting},
			filter: notA,
			want:   []string{urlB},
		},
		{
			label:  "none",
			health: [2]connection.Health{alive, alive},
			filter: none,
		},
	} {
		t.Run(c.label, func(t *testing.T) {
			conns := []*connection.Connection{
				newConnection(t, connection.Config{URL: mustParseURL(t, urlA)}),
				newConnection(t, connection.Config{URL: mustParseURL(t, urlB)}),
			}
			for i, h := range c.health {
				conns[i].SetHealth(h)
			}

			var candidates []string
			got := connpool.Basic{}.GetConnection(conns, connpool.GetOptions{
				Filter: c.filter,
				Selector: func(cs []*connection.Connection) *connection.Connection {
					candidates = ids(cs)
					return cs[0]
				},
			})
			if diff := cmp.Diff(c.want, candidates); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
			if len(c.want) == 0 {
				if got != nil {
					t.Errorf("GetConnection got %v, want nil", got.ID())
				}
				return
			}
			if got == nil || got.ID() != c.want[0] {
				t.Errorf("GetConnection got %v, want %s", got, c.want[0])
			}
		})
	}
}

func TestBasicSelectorPrecedence(t *testing.T) {
	conns := []*connection.Connection{
		newConnection(t, connection.Config{URL: mustParseURL(t, urlA)}),
		newConnection(t, connection.Config{URL: mustParseURL(t, urlB)}),
	}
	first := func(cs []*connection.Connection) *connection.Connection { return cs[0] }
	last := func(cs []*connection.Connection) *connection.Connection { return cs[len(cs)-1] }

	policy := connpool.Basic{Selector: last}
	if got := policy.GetConnection(conns, connpool.GetOptions{}); got != conns[1] {
		t.Errorf("Basic.Selector not used, got %v", got.ID())
	}
	if got := policy.GetConnection(conns, connpool.GetOptions{Selector: first}); got != conns[0] {
		t.Errorf("GetOptions.Selector not preferred, got %v", got.ID())
	}
	if got := (connpool.Basic{}).GetConnection(conns[:1], connpool.GetOptions{}); got != conns[0] {
		t.Errorf("Default selector got %v, want %v", got.ID(), urlA)
	}
}

func TestBasicMarkDead(t *testing.T) {
	conn := newConnection(t, connection.Config{URL: mustParseURL(t, urlA)})

	t.Run("default-backoff", func(t *testing.T) {
		before := time.Now()
		connpool.Basic{}.MarkDead(conn)
		h := conn.Health()
		if h.Status != connection.StatusDead || h.DeadCount != 1 {
			t.Errorf("Health got %+v, want dead with dead count 1", h)
		}
		if earliest := before.Add(connpool.DefaultResurrectTimeout); h.ResurrectTimeout.Before(earliest) {
			t.Errorf("ResurrectTimeout got %v, want >= %v", h.ResurrectTimeout, earliest)
		}
	})

	t.Run("injected-backoff", func(t *testing.T) {
		var got []int
		policy := connpool.Basic{
			Backoff: func(deadCount int) time.Duration {
				got = append(got, deadCount)
				return time.Duration(deadCount) * time.Minute
			},
		}
		before := time.Now()
		policy.MarkDead(conn)
		policy.MarkDead(conn)
		after := time.Now()

		if diff := cmp.Diff([]int{2, 3}, got); diff != "" {
			t.Errorf("backoff calls mismatch (-want +got):\n%s", diff)
		}
		h := conn.Health()
		if h.DeadCount != 3 {
			t.Errorf("DeadCount got %d, want 3", h.DeadCount)
		}
		earliest := before.Add(3 * time.Minute)
		latest := after.Add(3 * time.Minute)
		if h.ResurrectTimeout.Before(earliest) || h.ResurrectTimeout.After(latest) {
			t.Errorf("ResurrectTimeout got %v, want in [%v, %v]", h.ResurrectTimeout, earliest, latest)
		}
	})

	t.Run("mark-alive", func(t *testing.T) {
		connpool.Basic{}.MarkAlive(conn)
		if diff := cmp.Diff(connection.Health{Status: connection.StatusAlive}, conn.Health()); diff != "" {
			t.Errorf("Health mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCappedExponentialBackoff(t *testing.T) {
	backoff := connpool.CappedExponentialBackoff(time.Second, 3, 0)
	for _, c := range []struct {
		deadCount int
		want      time.Duration
	}{
		{deadCount: 0, want: time.Second},
		{deadCount: 1, want: time.Second},
		{deadCount: 2, want: 2 * time.Second},
		{deadCount: 3, want: 4 * time.Second},
		{deadCount: 4, want: 8 * time.Second},
		{deadCount: 10, want: 8 * time.Second},
	} {
		if got := backoff(c.deadCount); got != c.want {
			t.Errorf("backoff(%d) got %v, want %v", c.deadCount, got, c.want)
		}
	}

	t.Run("no-cutoff", func(t *testing.T) {
		backoff := connpool.CappedExponentialBackoff(time.Second, 0, 0)
		for _, deadCount := range []int{1, 2, 5} {
			if got := backoff(deadCount); got != time.Second {
				t.Errorf("backoff(%d) got %v, want %v", deadCount, got, time.Second)
			}
		}
	})

	t.Run("jitter", func(t *testing.T) {
		backoff := connpool.CappedExponentialBackoff(time.Second, 3, 0.5)
		for i := 0; i < 100; i++ {
			if got := backoff(2); got < time.Second || got > 3*time.Second {
				t.Fatalf("backoff(2) got %v, want in [1s, 3s]", got)
			}
		}
	})
}
