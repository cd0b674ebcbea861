package app_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moruklabs/dev-archive/internal/app"
)

const appConfig = `
archive:
  root: rss
  public_base_url: https://moruklabs.github.io/dev-archive
fetch:
  allowed_domains:
    - mshibanami.github.io
definitions:
  langs:
    - go
targets:
  - destination: ${lang}/feed.xml
    url: https://x/${lang}/feed.xml
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appConfig), 0o600))
	return path
}

func TestNewWiresEveryService(t *testing.T) {
	application, err := app.New(writeConfig(t), time.Now().UTC())
	require.NoError(t, err)
	defer application.Close()

	assert.NotNil(t, application.Logger)
	assert.NotNil(t, application.Fs)
	assert.NotNil(t, application.Pipeline)
	assert.NotNil(t, application.Reporter)
	assert.Nil(t, application.Metrics, "no listener unless configured")
	assert.Equal(t, "rss", application.Config.Archive.Root)
}

func TestNewStartsMetricsListenerWhenConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := appConfig + `
metrics:
  listen_addr: 127.0.0.1:0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	application, err := app.New(path, time.Now().UTC())
	require.NoError(t, err)
	defer application.Close()

	require.NotNil(t, application.Metrics)
	resp, err := http.Get("http://" + application.Metrics.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewMissingConfigIsFatal(t *testing.T) {
	_, err := app.New(filepath.Join(t.TempDir(), "missing.yaml"), time.Now().UTC())
	assert.Error(t, err)
}
