package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-console/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "/api/v1", c.GetAPIPrefix())
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
	require.Equal(t, int64(1), c.GetRootCompanyID())
	require.True(t, c.GetRefreshCoalescing())
	require.Empty(t, c.GetRedisURL())
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_BASE_URL", "https://auth.example.com")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("ROOT_COMPANY_ID", "7")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BOOTSTRAP_WAIT", "250ms")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://auth.example.com", c.GetAPIBaseURL())
	require.Equal(t, 3*time.Second, c.GetRequestTimeout())
	require.Equal(t, int64(7), c.GetRootCompanyID())
	require.Equal(t, "redis://localhost:6379/0", c.GetRedisURL())
	require.Equal(t, 250*time.Millisecond, c.GetBootstrapWait())
}

func TestNew_InvalidValue(t *testing.T) {
	t.Setenv("ROOT_COMPANY_ID", "not-a-number")

	_, err := config.New()
	require.Error(t, err)
}
