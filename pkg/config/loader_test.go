package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server {
    listen 127.0.0.1:8080
    server_name example.com
    root /srv/www
    index index.html
    autoindex off
    client_max_body_size 5M
    error_page 404 /404.html
    error_page_dir /srv/errors

    location / {
        limit_except GET POST DELETE
    }

    location /up {
        upload_store /tmp/u
        upload_create_dirs on
    }

    location /cgi-bin {
        cgi_pass .py /usr/bin/python3
    }

    location /old {
        return 301 https://example.com/new
    }
}
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webserv.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDirectiveLoaderParsesSample(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	endpoints, err := NewDirectiveLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)

	ep := endpoints[0]
	require.Equal(t, "127.0.0.1:8080", ep.Address)
	require.Len(t, ep.VHosts, 1)

	vhost := ep.VHosts[0]
	require.Equal(t, []string{"example.com"}, vhost.ServerNames)
	require.Equal(t, "/srv/www", vhost.Root)
	require.EqualValues(t, 5*1024*1024, vhost.ClientMaxBodySize)
	require.Equal(t, "/404.html", vhost.ErrorPages[404])
	require.Len(t, vhost.Locations, 4)

	upload := vhost.Locations[1]
	require.Equal(t, "/up", upload.Mount)
	require.NotNil(t, upload.Upload)
	require.Equal(t, "/tmp/u", upload.Upload.Store)
	require.True(t, upload.Upload.CreateDirs)

	cgiLoc := vhost.Locations[2]
	prog, ok := cgiLoc.IsCGI("/cgi-bin/echo.py")
	require.True(t, ok)
	require.Equal(t, "/usr/bin/python3", prog)

	redirect := vhost.Locations[3]
	require.NotNil(t, redirect.Return)
	require.Equal(t, 301, redirect.Return.Code)
}

func TestVHostMatchesHost(t *testing.T) {
	v := &VHostConfig{ServerNames: []string{"a.com", "b.com"}}
	require.True(t, v.Matches("a.com"))
	require.False(t, v.Matches("c.com"))

	def := &VHostConfig{Host: "default.com"}
	require.True(t, def.Matches("default.com"))
}

func TestEffectiveMaxBodySize(t *testing.T) {
	vhost := &VHostConfig{ClientMaxBodySize: 100}
	loc := &LocationConfig{ClientMaxBodySize: 0}
	require.EqualValues(t, 100, EffectiveMaxBodySize(loc, vhost))

	loc.ClientMaxBodySize = 50
	require.EqualValues(t, 50, EffectiveMaxBodySize(loc, vhost))
}
