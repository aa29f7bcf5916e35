package modules

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/memohai/relay/internal/boot"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/store"
)

func TestGraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(InfraModule, RelayModule, ServerModule))
}

func TestChannelRegistryRegistersAllPlatforms(t *testing.T) {
	t.Parallel()
	registry, err := provideChannelRegistry(logger.Discard(), config.Config{})
	require.NoError(t, err)
	assert.Equal(t, []channel.Type{"discord", "slack", "telegram"}, registry.Types())

	_, err = provideChannelRegistry(logger.Discard(), config.Config{Discord: config.DiscordConfig{PublicKey: "not-hex"}})
	assert.Error(t, err)
}

func TestProvideStoreSQLite(t *testing.T) {
	t.Parallel()
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Store: config.StoreConfig{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "relay.db")}}

	s, err := provideStore(lc, logger.Discard(), cfg, &boot.RuntimeConfig{StoreDriver: cfg.Store.Driver})
	require.NoError(t, err)
	_, err = s.GetToken(t.Context(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	lc.RequireStart().RequireStop()
}

func TestProvideStoreRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := provideStore(fxtest.NewLifecycle(t), logger.Discard(), config.Config{}, &boot.RuntimeConfig{StoreDriver: "mysql"})
	assert.ErrorContains(t, err, "unknown store driver")
}
