package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pxlb/internal/core/domain"
)

const sampleYAML = `
server:
  host: 127.0.0.1
  api_port: 8282
  timeout: 4s
pools:
  - name: A
    proxies:
      - host: 10.0.0.1
        port: 8080
        user: user
        pass: pass
        types: [HTTP, CONNECT:80]
      - host: 10.0.0.2
  - name: B
    proxies:
      - host: 10.0.0.3
        types: [SOCKS5]
        verify_tls: true
rules:
  - name: search
    port: 18080
    pools: [A]
    domains: ['google\.', 'bing\.']
  - name: default
    port: 18080
    pools: [A, B]
    domains: ['.*']
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8282, cfg.Server.APIPort)
	assert.True(t, cfg.Server.LogRequests) // default survives partial config
	assert.Equal(t, "4s", cfg.Server.Timeout.String())
	assert.Len(t, cfg.Pools, 2)
	assert.Len(t, cfg.Rules, 2)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no rules", "pools:\n  - name: A\n"},
		{"unknown pool", `
rules:
  - name: r
    port: 18080
    pools: [missing]
    domains: ['.*']
`},
		{"bad port", `
pools:
  - name: A
rules:
  - name: r
    port: 99999
    pools: [A]
    domains: ['.*']
`},
		{"no domains", `
pools:
  - name: A
rules:
  - name: r
    port: 18080
    pools: [A]
    domains: []
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestMaterialise(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML), nil)
	require.NoError(t, err)

	pools, rules, err := cfg.Materialise()
	require.NoError(t, err)

	require.Len(t, pools, 2)
	assert.Equal(t, "A", pools[0].Name)
	require.Len(t, pools[0].Proxies, 2)

	withAuth := pools[0].Proxies[0]
	assert.Equal(t, "10.0.0.1:8080", withAuth.Addr())
	assert.NotEmpty(t, withAuth.AuthToken())
	assert.Contains(t, withAuth.Types, domain.ProtoConnect80)

	plain := pools[0].Proxies[1]
	assert.Equal(t, 80, plain.Port)
	assert.Empty(t, plain.AuthToken())

	// 2 + 1 patterns flatten to 3 rules; ranks preserve rule and pattern
	// order in one key.
	require.Len(t, rules, 3)
	assert.InDelta(t, 0.00, rules[0].Rank, 1e-9)
	assert.InDelta(t, 0.01, rules[1].Rank, 1e-9)
	assert.InDelta(t, 1.00, rules[2].Rank, 1e-9)
	assert.Equal(t, "A,B", rules[2].PoolSet)
}

func TestMaterialise_BadPattern(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pools:
  - name: A
rules:
  - name: r
    port: 18080
    pools: [A]
    domains: ['[']
`), nil)
	require.NoError(t, err)

	_, _, err = cfg.Materialise()
	assert.Error(t, err)
}
