package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiterDisabled(t *testing.T) {
	var nilLimiter *FixedWindowLimiter
	d, err := nilLimiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	noClient := NewFixedWindowLimiter(nil, "contact", 5, time.Minute)
	d, err = noClient.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.Remaining)
}
