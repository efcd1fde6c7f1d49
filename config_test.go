package gddns_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travis-Britz/gddns"
)

func writeFile(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("GDDNS_TEST_PASSWORD", "s3cret")
	tokenFile := writeFile(t, "token", "cf-token\n", 0o600)

	path := writeFile(t, "config.toml", `
cache_dir = "/tmp/gddns-cache"
poll_interval = "10m"
metrics_addr = "127.0.0.1:9153"

[log]
level = "debug"
production = true

[public_ip]
urls = ["https://ipv4.icanhazip.com/"]

[hosts."nas.example.org"]
provider = "cloudflare"
token_file = "`+tokenFile+`"
server_backoff = 2

[hosts."home.example.com"]
dyndns_url = "https://domains.google.com/nic/update"
username = "user"
password = "${GDDNS_TEST_PASSWORD}"
`, 0o644)

	cfg, err := gddns.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/gddns-cache", cfg.CacheDir)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:9153", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Production)
	assert.Equal(t, []string{"https://ipv4.icanhazip.com/"}, cfg.PublicIP.URLs)

	require.Len(t, cfg.Hosts, 2)
	home, nas := cfg.Hosts[0], cfg.Hosts[1]

	assert.Equal(t, "home.example.com", home.Name)
	assert.Equal(t, gddns.ProviderDynDNS2, home.Provider)
	assert.Equal(t, "https://domains.google.com/nic/update", home.DynDNSURL)
	assert.Equal(t, gddns.BasicAuth{Username: "user", Password: "s3cret"}, home.Auth)
	assert.Equal(t, gddns.DefaultServerBackoff, home.ServerBackoff)

	assert.Equal(t, "nas.example.org", nas.Name)
	assert.Equal(t, gddns.ProviderCloudflare, nas.Provider)
	assert.Equal(t, gddns.TokenAuth{Token: "cf-token"}, nas.Auth)
	assert.Equal(t, 2*time.Minute, nas.ServerBackoff)

	hosts, err := cfg.NewHosts(nil, nil)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.IsType(t, &gddns.DynDNS2Client{}, hosts[0].Client)
	assert.IsType(t, &gddns.CloudflareClient{}, hosts[1].Client)
	assert.Equal(t, 2*time.Minute, hosts[1].ServerBackoff)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "config.toml", `
[hosts."home.example.com"]
dyndns_url = "https://dyndns.example.com/nic/update"
token = "abc"
`, 0o644)

	cfg, err := gddns.LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.CacheDir)
	assert.Equal(t, gddns.DefaultPollInterval, cfg.PollInterval)
	require.Len(t, cfg.Hosts, 1)
	assert.Equal(t, gddns.TokenAuth{Token: "abc"}, cfg.Hosts[0].Auth)

	r, err := cfg.PublicIP.Resolver(nil)
	require.NoError(t, err)
	assert.Equal(t, gddns.DefaultResolver, r)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key": `
cache_dirs = "/tmp"
[hosts."home.example.com"]
dyndns_url = "https://dyndns.example.com/nic/update"
token = "abc"
`,
		"unknown host key": `
[hosts."home.example.com"]
dyndns_url = "https://dyndns.example.com/nic/update"
tokne = "abc"
`,
		"no hosts": `
cache_dir = "/tmp"
`,
		"two public ip sources": `
[public_ip]
urls = ["https://ipv4.icanhazip.com/"]
dns = true
[hosts."home.example.com"]
dyndns_url = "https://dyndns.example.com/nic/update"
token = "abc"
`,
		"bad host": `
[hosts."home.example.com"]
dyndns_url = "https://dyndns.example.com/nic/update"
`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := gddns.LoadConfig(writeFile(t, "config.toml", content, 0o644))
			assert.Error(t, err)
		})
	}

	_, err := gddns.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
}

func TestReadCacheDir(t *testing.T) {
	// The password variable is not set, so the full config does not load.
	path := writeFile(t, "config.toml", `
cache_dir = "/srv/gddns"

[hosts."home.example.com"]
dyndns_url = "https://domains.google.com/nic/update"
username = "user"
password = "${GDDNS_TEST_UNSET_PASSWORD}"
`, 0o644)
	_, err := gddns.LoadConfig(path)
	require.Error(t, err)

	dir, err := gddns.ReadCacheDir(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/gddns", dir)

	dir, err = gddns.ReadCacheDir(writeFile(t, "empty.toml", "poll_interval = \"1m\"\n", 0o644))
	require.NoError(t, err)
	assert.Empty(t, dir)

	_, err = gddns.ReadCacheDir(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNewHostConfig_Errors(t *testing.T) {
	negative := -1
	url := "https://dyndns.example.com/nic/update"
	tests := map[string]struct {
		name string
		hs   gddns.HostSettings
	}{
		"path separator":      {"a/b", gddns.HostSettings{DynDNSURL: url, Token: "t"}},
		"dot dot":             {"..", gddns.HostSettings{DynDNSURL: url, Token: "t"}},
		"no credentials":      {"h.example.com", gddns.HostSettings{DynDNSURL: url}},
		"username only":       {"h.example.com", gddns.HostSettings{DynDNSURL: url, Username: "u"}},
		"two forms":           {"h.example.com", gddns.HostSettings{DynDNSURL: url, Token: "t", Username: "u", Password: "p"}},
		"missing url":         {"h.example.com", gddns.HostSettings{Token: "t"}},
		"cloudflare password": {"h.example.com", gddns.HostSettings{Provider: gddns.ProviderCloudflare, Username: "u", Password: "p"}},
		"unknown provider":    {"h.example.com", gddns.HostSettings{Provider: "route53", Token: "t"}},
		"negative backoff":    {"h.example.com", gddns.HostSettings{DynDNSURL: url, Token: "t", ServerBackoff: &negative}},
		"empty env password":  {"h.example.com", gddns.HostSettings{DynDNSURL: url, Username: "u", Password: "${GDDNS_TEST_UNSET}"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := gddns.NewHostConfig(tt.name, tt.hs)
			assert.Error(t, err)
		})
	}
}

func TestNewHostConfig_TokenFilePermissions(t *testing.T) {
	for _, perm := range []os.FileMode{0o600, 0o400} {
		path := writeFile(t, "token", "abc\n", perm)
		hc, err := gddns.NewHostConfig("h.example.com", gddns.HostSettings{Provider: gddns.ProviderCloudflare, TokenFile: path})
		require.NoError(t, err, "mode %s", perm)
		assert.Equal(t, gddns.TokenAuth{Token: "abc"}, hc.Auth)
	}

	path := writeFile(t, "token", "abc\n", 0o644)
	_, err := gddns.NewHostConfig("h.example.com", gddns.HostSettings{Provider: gddns.ProviderCloudflare, TokenFile: path})
	assert.ErrorContains(t, err, "invalid permissions")
}

func TestPublicIPConfig_Resolver(t *testing.T) {
	r, err := gddns.PublicIPConfig{DNS: true}.Resolver(nil)
	require.NoError(t, err)
	assert.Equal(t, gddns.OpenDNSResolver{}, r)

	r, err = gddns.PublicIPConfig{Interface: "eth0"}.Resolver(nil)
	require.NoError(t, err)
	assert.NotNil(t, r)

	_, err = gddns.PublicIPConfig{Interface: "eth0", DNS: true}.Resolver(nil)
	assert.Error(t, err)
}
