package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/local/ebookconv/internal/config"
	"github.com/local/ebookconv/internal/remote"
)

func testConfig() cfgpkg.Config {
	return cfgpkg.Config{Remote: cfgpkg.RemoteConfig{
		Providers:       []string{"cloudconvert", "backend", "nope"},
		CloudConvertKey: "key",
		CloudConvertURL: "http://127.0.0.1:1",
		BackendURL:      "http://127.0.0.1:2",
		CalibreBinary:   "ebookconv-missing-ebook-convert",
		RequestTimeout:  time.Second,
		MaxInflight:     1,
	}}
}

func TestApp_ChainsShareLimitedProviders(t *testing.T) {
	a := newApp(context.Background(), testConfig())
	defer a.close()

	cloud, ok := a.providers["cloudconvert"].(*remote.Limited)
	require.True(t, ok)
	_, hasCalibre := a.providers["calibre"]
	assert.False(t, hasCalibre)

	full := a.delegators(a.cfg.Remote.Providers, true)
	server := a.delegators(a.cfg.Remote.Providers, false)
	require.NotNil(t, full)
	require.NotNil(t, server)
	assert.Equal(t, "failover(cloudconvert,backend)", full.Name())
	assert.Equal(t, "failover(cloudconvert)", server.Name())
	assert.Same(t, cloud, a.providers["cloudconvert"])
}

func TestApp_NoUsableProviders(t *testing.T) {
	c := testConfig()
	c.Remote.CloudConvertKey = ""
	c.Remote.BackendURL = ""
	a := newApp(context.Background(), c)
	defer a.close()

	assert.Nil(t, a.delegators(c.Remote.Providers, true))
	assert.Empty(t, a.providers)
}
