package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintNormalization(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"whitespace collapsed", "fix   the\tbug", "fix the bug", true},
		{"case folded", "Fix The Bug", "fix the bug", true},
		{"leading and trailing trimmed", "  fix the bug  ", "fix the bug", true},
		{"different prompts differ", "fix the bug", "fix the bugs", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fpA := Fingerprint(tt.a, "claude")
			fpB := Fingerprint(tt.b, "claude")
			if tt.same {
				assert.Equal(t, fpA, fpB)
			} else {
				assert.NotEqual(t, fpA, fpB)
			}
		})
	}
}

func TestFingerprintProviderSeparation(t *testing.T) {
	// Same prompt, different provider: distinct keys
	assert.NotEqual(t, Fingerprint("fix the bug", "claude"), Fingerprint("fix the bug", "codex"))

	// The separator prevents boundary ambiguity between prompt and provider
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestGetPut(t *testing.T) {
	c := New(4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	fp := Fingerprint("hello", "claude")
	c.Put(fp, "output text", 85)

	entry, ok := c.Get(fp)
	require.True(t, ok)
	assert.Equal(t, "output text", entry.Output)
	assert.Equal(t, 85, entry.Confidence)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Put("a", "1", 90)
	c.Put("b", "2", 90)
	c.Put("c", "3", 90)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Put("a", "1", 90)

	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire after ttl")
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	c := New(4, time.Minute)

	var builds atomic.Int32
	release := make(chan struct{})

	builder := func(ctx context.Context) (Entry, error) {
		builds.Add(1)
		<-release
		return Entry{Output: "built", Confidence: 80, CreatedAt: time.Now()}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Entry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(context.Background(), "fp", builder)
		}(i)
	}

	// Let every goroutine reach the flight before releasing the build
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load(), "concurrent callers share one build")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "built", results[i].Output)
	}

	// Entry was written back
	entry, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, "built", entry.Output)
}

func TestGetOrBuildErrorLeavesNoEntry(t *testing.T) {
	c := New(4, time.Minute)
	boom := errors.New("builder failed")

	_, err := c.GetOrBuild(context.Background(), "fp", func(ctx context.Context) (Entry, error) {
		return Entry{}, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := c.Get("fp")
	assert.False(t, ok, "failed build must not cache")

	// Next caller retries and can succeed
	entry, err := c.GetOrBuild(context.Background(), "fp", func(ctx context.Context) (Entry, error) {
		return Entry{Output: "second try", Confidence: 70}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second try", entry.Output)
}

func TestStats(t *testing.T) {
	c := New(8, time.Minute)

	c.Put("a", "1", 90)
	c.Get("a")       // hit
	c.Get("missing") // miss
	c.Get("a")       // hit

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	// The explicit Get misses; GetOrBuild lookups would add more
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, 8, s.MaxSize)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestStatsEmpty(t *testing.T) {
	c := New(8, time.Minute)
	s := c.Stats()
	assert.Zero(t, s.Hits)
	assert.Zero(t, s.Misses)
	assert.Zero(t, s.HitRate)
}
