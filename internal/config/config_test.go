package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	viper.Reset()
	for key, value := range env {
		t.Setenv(key, value)
	}
	return Load()
}

func TestLoad(t *testing.T) {
	base := map[string]string{
		"ALIASFLARE_CLOUDFLARE_API_TOKEN": "test-token",
		"ALIASFLARE_CLOUDFLARE_ZONES":     "zone-1",
	}

	t.Run("缺少API令牌时报错", func(t *testing.T) {
		_, err := loadWithEnv(t, map[string]string{
			"ALIASFLARE_CLOUDFLARE_ZONES": "zone-1",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_token")
	})

	t.Run("缺少区域时报错", func(t *testing.T) {
		_, err := loadWithEnv(t, map[string]string{
			"ALIASFLARE_CLOUDFLARE_API_TOKEN": "test-token",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zones")
	})

	t.Run("默认值", func(t *testing.T) {
		cfg, err := loadWithEnv(t, base)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"zone-1"}, cfg.Cloudflare.Zones)
		assert.Equal(t, 10*time.Second, cfg.Cloudflare.Timeout)
		assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
		assert.Equal(t, 10*time.Second, cfg.Sync.Cooldown)
		assert.Equal(t, 2*time.Second, cfg.Sync.Debounce)
		assert.Equal(t, 3, cfg.Sync.StartupRetries)
		assert.NotEmpty(t, cfg.Sync.OwnerTag) // 默认取主机名
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Empty(t, cfg.Database.Type)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 15*time.Minute, cfg.Auth.SessionExpiry)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		env := map[string]string{
			"ALIASFLARE_CLOUDFLARE_API_TOKEN": "test-token",
			"ALIASFLARE_CLOUDFLARE_ZONES":     "zone-1, zone-2",
			"ALIASFLARE_SERVER_PORT":          "9090",
			"ALIASFLARE_SYNC_INTERVAL":        "1m",
			"ALIASFLARE_SYNC_OWNER_TAG":       "laptop",
			"ALIASFLARE_DATABASE_TYPE":        "postgres",
			"ALIASFLARE_DATABASE_DSN":         "postgres://localhost/aliases",
			"ALIASFLARE_REDIS_ENABLED":        "true",
		}
		cfg, err := loadWithEnv(t, env)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"zone-1", "zone-2"}, cfg.Cloudflare.Zones)
		assert.Equal(t, time.Minute, cfg.Sync.Interval)
		assert.Equal(t, "laptop", cfg.Sync.OwnerTag)
		assert.Equal(t, "postgres", cfg.Database.Type)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("过短的JWT密钥被拒绝", func(t *testing.T) {
		env := map[string]string{
			"ALIASFLARE_CLOUDFLARE_API_TOKEN": "test-token",
			"ALIASFLARE_CLOUDFLARE_ZONES":     "zone-1",
			"ALIASFLARE_AUTH_JWT_SECRET":      "too-short",
		}
		_, err := loadWithEnv(t, env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 characters")
	})

	t.Run("非法的时长回退到默认值", func(t *testing.T) {
		env := map[string]string{
			"ALIASFLARE_CLOUDFLARE_API_TOKEN": "test-token",
			"ALIASFLARE_CLOUDFLARE_ZONES":     "zone-1",
			"ALIASFLARE_SYNC_INTERVAL":        "not-a-duration",
		}
		cfg, err := loadWithEnv(t, env)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	})
}
