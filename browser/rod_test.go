package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagecheck/config"
)

func TestRodSession_ScopedCallsAreBounded(t *testing.T) {
	cfg := config.Default()
	cfg.NavTimeout = 1500
	s := &rodSession{cfg: cfg, page: &rod.Page{}}

	start := time.Now()
	deadline, ok := s.scoped(context.Background()).GetContext().Deadline()
	require.True(t, ok, "every page call carries a deadline")
	assert.WithinDuration(t, start.Add(1500*time.Millisecond), deadline, time.Second)
}

func TestRodSession_ScopedFollowsCallerContext(t *testing.T) {
	s := &rodSession{cfg: config.Default(), page: &rod.Page{}}

	ctx, cancel := context.WithCancel(context.Background())
	p := s.scoped(ctx)
	cancel()

	select {
	case <-p.GetContext().Done():
	case <-time.After(time.Second):
		t.Fatal("page context outlived the caller")
	}
}
