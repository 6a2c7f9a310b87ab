package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const minimalConfig = `
discord:
  client_id: client-id
  client_secret: client-secret
  redirect_url: http://localhost:8080/auth/discord/callback
  bot_token: bot-token
  guild_id: "683939861539192860"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, RepositoryBackendMemory, cfg.Repository.Backend)
	assert.Equal(t, "oauth2", cfg.Repository.PendingAuthCollection)
	assert.Equal(t, "members", cfg.Repository.MembersCollection)
	assert.Equal(t, 8, cfg.Directory.ResolveConcurrency)
	assert.Equal(t, 100, cfg.RateLimits.RequestsPerHour)
	assert.Equal(t, 9090, cfg.Observability.MetricsPort)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_DISCORD_SECRET", "secret-from-env")

	cfg, err := Load(writeConfig(t, `
discord:
  client_id: client-id
  client_secret: ${TEST_DISCORD_SECRET}
  redirect_url: http://localhost:8080/auth/discord/callback
  bot_token: bot-token
  guild_id: "683939861539192860"
`))
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Discord.ClientSecret)
}

func TestLoadMissingEnvVarFails(t *testing.T) {
	_, err := Load(writeConfig(t, `
discord:
  client_id: client-id
  client_secret: ${DEFINITELY_UNSET_VAR_93}
  redirect_url: http://localhost:8080/auth/discord/callback
  bot_token: bot-token
  guild_id: "683939861539192860"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFINITELY_UNSET_VAR_93")
}

func TestLoadSkipsCommentedEnvVars(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
# repository:
#   project_id: ${UNSET_OPTIONAL_PROJECT}
`))
	require.NoError(t, err)
	assert.Equal(t, RepositoryBackendMemory, cfg.Repository.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "discord: [not: a: mapping"))
	assert.Error(t, err)
}

func TestValidateRequiresDiscordFields(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  port: 8080
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.client_id is required")
	assert.Contains(t, err.Error(), "discord.bot_token is required")
	assert.Contains(t, err.Error(), "discord.guild_id is required")
}

func TestValidateFirestoreNeedsProjectID(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
repository:
  backend: firestore
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository.project_id is required")
}

func TestValidateFirestoreWithProjectID(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
repository:
  backend: firestore
  project_id: my-project
`))
	require.NoError(t, err)
	assert.Equal(t, RepositoryBackendFirestore, cfg.Repository.Backend)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
repository:
  backend: dynamodb
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dynamodb" is not supported`)
}

func TestValidateRejectsNegativeConcurrency(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
directory:
  resolve_concurrency: -2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve_concurrency")
}
