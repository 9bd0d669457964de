package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyCheckerIsHealthy(t *testing.T) {
	c := NewChecker()
	r := c.Report(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.False(t, r.Ready)
	assert.Empty(t, r.Components)
}

func TestCriticalFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("ipc", true, func(context.Context) CheckResult { return Healthy("listening") })
	c.RegisterFunc("input", true, func(context.Context) CheckResult {
		return Unhealthy("input unavailable", errors.New("no desktop"))
	})

	r := c.Report(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, []string{"input", "ipc"}, r.Names())
	assert.Equal(t, "no desktop", r.Components["input"].Error)
	assert.False(t, r.Components["ipc"].LastChecked.IsZero())
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("ipc", true, func(context.Context) CheckResult { return Healthy("") })
	c.RegisterFunc("config_watch", false, func(context.Context) CheckResult { return Unhealthy("not watching", nil) })
	c.Check(context.Background())
	assert.Equal(t, StatusDegraded, c.OverallStatus())
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("sampling", true, func(context.Context) CheckResult { return Healthy("") })
	assert.Equal(t, StatusUnknown, c.OverallStatus())
}

func TestPanicAndTimeout(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("boom", false, func(context.Context) CheckResult { panic("exploded") })
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return Healthy("late")
		},
	})

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusUnhealthy, results["boom"].Status)
	assert.Equal(t, "exploded", results["boom"].Error)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
}

func TestBool(t *testing.T) {
	up := false
	check := Bool(func() bool { return up }, "running", "stopped")
	assert.Equal(t, StatusUnhealthy, check(context.Background()).Status)
	up = true
	r := check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "running", r.Message)
}

func TestRegisterReplaces(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("ipc", true, func(context.Context) CheckResult { return Unhealthy("down", nil) })
	c.RegisterFunc("ipc", true, func(context.Context) CheckResult { return Healthy("up") })
	c.SetReady(true)

	r := c.Report(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.True(t, r.Ready)
	assert.Equal(t, "up", r.Components["ipc"].Message)
}
