package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, testConfig().validate())

	for name, mutate := range map[string]func(*Config){
		"cert without key": func(c *Config) { c.tlsCert = "cert.pem" },
		"port too high":    func(c *Config) { c.port = 70000 },
		"no round window":  func(c *Config) { c.roundWindow = 0 },
		"negative settle":  func(c *Config) { c.settleDelay = -time.Second },
		"no burst":         func(c *Config) { c.messageBurst = 0 },
	} {
		cfg := testConfig()
		mutate(cfg)
		assert.Error(t, cfg.validate(), name)
	}
}

func TestBotConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&BotConfig{server: "http://localhost:8080", recall: 0.5}).validate())
	assert.Error(t, (&BotConfig{recall: 0.5}).validate())
	assert.Error(t, (&BotConfig{server: "http://localhost:8080", recall: 1.5}).validate())
}

func TestScheme(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestEnvironmentFillsUnsetFlags(t *testing.T) {
	t.Setenv("PLATEMATCH_PORT", "9090")
	t.Setenv("PLATEMATCH_ROUND_WINDOW", "5s")
	t.Setenv("PLATEMATCH_MAIN_WINDOW", "9s")
	t.Setenv("PLATEMATCH_SHADOW_VALIDATE", "true")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NoError(t, cmd.ParseFlags([]string{"--main-window=2s"}))

	bindFlags(cmd.Flags(), "PLATEMATCH")

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, 5*time.Second, cfg.roundWindow)
	assert.Equal(t, 2*time.Second, cfg.mainWindow)
	assert.True(t, cfg.shadowValidate)
	assert.Equal(t, "0.0.0.0", cfg.bind)
}

func TestBotEnvironment(t *testing.T) {
	t.Setenv("PLATEMATCH_BOT_CODE", "ABC234")
	t.Setenv("PLATEMATCH_BOT_RECALL", "0.25")

	cfg := &Config{}
	bot, _, err := newCmd(cfg).Find([]string{"bot"})
	require.NoError(t, err)
	require.NoError(t, bot.ParseFlags(nil))

	bindFlags(bot.Flags(), "PLATEMATCH_BOT")

	assert.Equal(t, "ABC234", cfg.bot.code)
	assert.InDelta(t, 0.25, cfg.bot.recall, 1e-9)
	assert.Equal(t, "Bot", cfg.bot.name)
}

func TestTiming(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.settleDelay = 3 * time.Second

	got := cfg.timing()
	assert.Equal(t, cfg.roundWindow, got.RoundWindow)
	assert.Equal(t, cfg.mainWindow, got.MainWindow)
	assert.Equal(t, 3*time.Second, got.Settle)
}
