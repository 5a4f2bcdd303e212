package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Maruffly/webserv-sub000/pkg/config"
)

type fakeStat map[string]bool // path -> isDir

func (f fakeStat) Stat(path string) (exists bool, isDir bool) {
	isDir, ok := f[path]
	return ok, isDir
}

func testEndpoint() *config.ListeningEndpoint {
	vhost := &config.VHostConfig{
		ServerNames:       []string{"example.com"},
		Root:              "/srv/www",
		Index:             []string{"index.html"},
		ClientMaxBodySize: 1024,
		Locations: []*config.LocationConfig{
			{Mount: "/", Root: "/srv/www"},
			{Mount: "/uploads", Upload: &config.Upload{Store: "/srv/uploads"}},
			{Mount: "/cgi-bin/", CgiPass: map[string]string{".py": "/usr/bin/python3"}},
			{Mount: "/old", Return: &config.Redirect{Code: 301, URL: "https://example.com/new"}},
		},
	}
	return &config.ListeningEndpoint{Address: "0.0.0.0:8080", VHosts: []*config.VHostConfig{vhost}}
}

func TestRouteStaticFile(t *testing.T) {
	ep := testEndpoint()
	stat := fakeStat{"/srv/www/index.html": false}
	req := &Request{Method: "GET", Target: "/index.html", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, stat)
	require.Equal(t, KindStatic, d.Kind)
	require.Equal(t, "/srv/www/index.html", d.Path)
}

func TestRouteRedirect(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "GET", Target: "/old/page", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindRedirect, d.Kind)
	require.Equal(t, 301, d.RedirectCode)
}

func TestRouteCGIDispatch(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "GET", Target: "/cgi-bin/hello.py", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindCGI, d.Kind)
	require.Equal(t, "/usr/bin/python3", d.Interpreter)
}

func TestRouteMethodNotAllowed(t *testing.T) {
	ep := testEndpoint()
	ep.VHosts[0].Locations[0].Methods = []string{"GET"}
	req := &Request{Method: "DELETE", Target: "/index.html", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, fakeStat{"/srv/www/index.html": false})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 405, d.Status)
	require.Contains(t, d.AllowHeader, "GET")
}

func TestRoutePostWithoutLengthIs411(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "POST", Target: "/uploads/x", Version: "HTTP/1.1", Host: "example.com", Headers: map[string]string{}}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 411, d.Status)
}

func TestRouteBodyTooLargeIs413(t *testing.T) {
	ep := testEndpoint()
	req := &Request{
		Method: "POST", Target: "/uploads/x", Version: "HTTP/1.1", Host: "example.com",
		Headers: map[string]string{"content-length": "2000"}, BodyLen: 2000,
	}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 413, d.Status)
}

func TestRouteDeleteRefusedOnCGI(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "DELETE", Target: "/cgi-bin/hello.py", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 403, d.Status)
}

func TestRouteDirectoryAutoindexOffServesIndex(t *testing.T) {
	ep := testEndpoint()
	stat := fakeStat{"/srv/www/sub": true, "/srv/www/sub/index.html": false}
	req := &Request{Method: "GET", Target: "/sub", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, stat)
	require.Equal(t, KindStatic, d.Kind)
	require.Equal(t, "/srv/www/sub/index.html", d.Path)
}

func TestRouteDirectoryAutoindexOn(t *testing.T) {
	ep := testEndpoint()
	ep.VHosts[0].Autoindex = true
	stat := fakeStat{"/srv/www/sub": true}
	req := &Request{Method: "GET", Target: "/sub", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, stat)
	require.Equal(t, KindStatic, d.Kind)
	require.True(t, d.IsDir)
	require.Equal(t, "/sub", d.URIPath)
	require.Equal(t, "/srv/www/sub", d.Path)
}

func TestRouteDenyAll(t *testing.T) {
	ep := testEndpoint()
	ep.VHosts[0].Locations = append(ep.VHosts[0].Locations, &config.LocationConfig{
		Mount: "/secret", Deny: []string{"all"},
	})
	req := &Request{Method: "GET", Target: "/secret", Version: "HTTP/1.1", Host: "example.com", RemoteAddr: "10.0.0.5:51000"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 403, d.Status)
}

func TestRouteAllowOverridesDenyForSpecificIP(t *testing.T) {
	ep := testEndpoint()
	ep.VHosts[0].Locations = append(ep.VHosts[0].Locations, &config.LocationConfig{
		Mount: "/secret", Allow: []string{"10.0.0.5"}, Deny: []string{"all"},
	})
	allowed := &Request{Method: "GET", Target: "/secret", Version: "HTTP/1.1", Host: "example.com", RemoteAddr: "10.0.0.5:51000"}
	d := Route(ep, allowed, fakeStat{})
	require.NotEqual(t, 403, d.Status)

	denied := &Request{Method: "GET", Target: "/secret", Version: "HTTP/1.1", Host: "example.com", RemoteAddr: "10.0.0.6:51000"}
	d2 := Route(ep, denied, fakeStat{})
	require.Equal(t, KindError, d2.Kind)
	require.Equal(t, 403, d2.Status)
}

func TestRouteNotFound(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "GET", Target: "/nope.html", Version: "HTTP/1.1", Host: "example.com"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 404, d.Status)
}

func TestRouteUnsupportedVersion(t *testing.T) {
	ep := testEndpoint()
	req := &Request{Method: "GET", Target: "/index.html", Version: "HTTP/2.0", Host: "example.com"}
	d := Route(ep, req, fakeStat{})
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, 505, d.Status)
}

func TestResolvePathTraversalBlocked(t *testing.T) {
	_, ok := resolvePath("/../etc/passwd", "/", "/srv/www")
	require.False(t, ok)
}

func TestResolvePathNormalizesDotSegments(t *testing.T) {
	p, ok := resolvePath("/a/./b/../c", "/", "/srv/www")
	require.True(t, ok)
	require.Equal(t, "/srv/www/a/c", p)
}
