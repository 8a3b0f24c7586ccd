package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoints ...EndpointConfig) *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    5,
		DefaultWindow:   time.Minute,
		EndpointConfigs: endpoints,
	}
}

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewLimiter(testConfig(EndpointConfig{
		Path: "/runs/", Method: "POST", Limit: 60, Window: time.Hour, Burst: 3,
	}))
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("1.2.3.4", "/runs/abc/steps/outline", "POST")
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, 60, info.Limit)
	}

	allowed, info := l.Allow("1.2.3.4", "/runs/abc/steps/outline", "POST")
	assert.False(t, allowed)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.Equal(t, 0, info.Remaining)
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	// 100 tokens per second so the bucket recovers within the test.
	l := NewLimiter(testConfig(EndpointConfig{
		Path: "/auth/login", Method: "POST", Limit: 100, Window: time.Second, Burst: 1,
	}))
	defer l.Stop()

	allowed, _ := l.Allow("1.2.3.4", "/auth/login", "POST")
	require.True(t, allowed)
	allowed, _ = l.Allow("1.2.3.4", "/auth/login", "POST")
	require.False(t, allowed)

	time.Sleep(50 * time.Millisecond)

	allowed, _ = l.Allow("1.2.3.4", "/auth/login", "POST")
	assert.True(t, allowed, "bucket refills after waiting")
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(testConfig(EndpointConfig{
		Path: "/projects", Method: "POST", Limit: 10, Window: time.Hour, Burst: 1,
	}))
	defer l.Stop()

	allowed, _ := l.Allow("1.1.1.1", "/projects", "POST")
	require.True(t, allowed)
	allowed, _ = l.Allow("1.1.1.1", "/projects", "POST")
	require.False(t, allowed)

	allowed, _ = l.Allow("2.2.2.2", "/projects", "POST")
	assert.True(t, allowed, "another client has its own bucket")
}

func TestLimiter_DefaultTier(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/projects", "GET")
		assert.True(t, allowed, "request %d", i)
	}
	allowed, _ := l.Allow("1.2.3.4", "/projects", "GET")
	assert.False(t, allowed)
}

func TestLimiter_HealthIsUnlimited(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultLimit = 1
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 20; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultLimit = 1
	cfg.Whitelist = map[string]bool{"10.0.0.1": true}
	cfg.Blacklist = map[string]bool{"10.0.0.2": true}
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/projects", "GET")
		require.True(t, allowed, "whitelisted client is never throttled")
	}

	allowed, _ := l.Allow("10.0.0.2", "/projects", "GET")
	assert.False(t, allowed, "blacklisted client is always rejected")
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/projects", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := NewLimiter(testConfig())
	l.Stop()
	l.Stop()
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/auth/login", Method: "POST", Limit: 30, Window: time.Minute},
		{Path: "/runs/", Method: "POST", Limit: 60, Window: time.Hour},
	}

	tests := []struct {
		name   string
		path   string
		method string
		want   int // expected Limit, -1 for nil, 0 for unlimited
	}{
		{"exact match", "/auth/login", "POST", 30},
		{"prefix match", "/runs/abc123/steps/plan", "POST", 60},
		{"method mismatch", "/auth/login", "GET", -1},
		{"no match falls through", "/projects", "GET", -1},
		{"health is unlimited", "/health", "GET", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.want == -1 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Limit)
		})
	}
}
