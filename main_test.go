package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apphost/config"
	"apphost/logger"
)

func TestLoadGraphFromProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Profile = "cloud-managed"

	g, err := loadGraph(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mealie", g.Name)
	assert.Len(t, g.Environments, 1)

	cfg.Profile = "unknown"
	_, err = loadGraph(cfg)
	assert.Error(t, err)
}

func TestLoadGraphFromDescriptor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Descriptor = "examples/mealie.hcl"

	g, err := loadGraph(cfg)
	require.NoError(t, err)
	_, ok := g.Container("mealie-app")
	assert.True(t, ok)
}

func TestPrintEnv(t *testing.T) {
	g, err := loadGraph(config.DefaultConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printEnv(&buf, g, "mealie-app"))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# mealie-app\n"))
	assert.Contains(t, out, "POSTGRES_SERVER={postgres.endpoint.tcp.host}\n")
	assert.Contains(t, out, "POSTGRES_PASSWORD={postgres.password}\n")
	assert.Contains(t, out, "TZ=Australia/Brisbane\n")

	assert.Error(t, printEnv(&buf, g, "missing"))
}

func TestExecuteGraph(t *testing.T) {
	t.Setenv("APPHOST_LOG_LEVEL", "error")

	var buf bytes.Buffer
	require.NoError(t, execute("graph", cliFlags{profile: "plain-container", format: "dot"}, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), `digraph "mealie" {`))

	buf.Reset()
	require.NoError(t, execute("validate", cliFlags{profile: "plain-container"}, &buf))
	assert.Contains(t, buf.String(), "3 resources")

	assert.Error(t, execute("deploy", cliFlags{profile: "plain-container"}, &buf))
}

func TestAdminHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1", adminHost("0.0.0.0"))
	assert.Equal(t, "127.0.0.1", adminHost(""))
	assert.Equal(t, "192.168.1.5", adminHost("192.168.1.5"))
}

func TestCredentialsPersistGeneratedPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StateDir = t.TempDir()

	first, err := credentials(cfg)("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", first.UserName)
	assert.NotEmpty(t, first.Password)

	second, err := credentials(cfg)("postgres")
	require.NoError(t, err)
	assert.Equal(t, first.Password, second.Password)

	cfg.PostgresPassword = "fixed"
	fixed, err := credentials(cfg)("postgres")
	require.NoError(t, err)
	assert.Equal(t, "fixed", fixed.Password)
}

func TestNewIngressRecordsDomainsWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	require.False(t, cfg.Cloudflare.Enabled)

	ingress, err := newIngress(cfg, logger.Discard())
	require.NoError(t, err)
	assert.True(t, ingress.IsEnabled())

	domain, err := ingress.RegisterIngress(context.Background(), "mealie-app")
	require.NoError(t, err)
	require.NotNil(t, domain)
	assert.Equal(t, "mealie-app.localhost", domain.Domain)
	assert.Len(t, ingress.GetAllIngress(), 1)

	require.NoError(t, ingress.DeleteAll(context.Background()))
	assert.Empty(t, ingress.GetAllIngress())

	cfg.Cloudflare.AutoGenerate = false
	ingress, err = newIngress(cfg, logger.Discard())
	require.NoError(t, err)
	domain, err = ingress.RegisterIngress(context.Background(), "mealie-app")
	require.NoError(t, err)
	assert.Nil(t, domain)
}
