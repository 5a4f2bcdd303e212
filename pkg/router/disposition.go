// Package router implements virtual-host/location selection and request
// dispatch: it resolves an incoming request to a Disposition describing
// what the rest of the server must do, using a tagged union in place of
// inheritance-based request/response contracts.
package router

import "github.com/Maruffly/webserv-sub000/pkg/config"

// Kind discriminates a Disposition.
type Kind int

const (
	KindStatic Kind = iota
	KindUpload
	KindDelete
	KindRedirect
	KindCGI
	KindError
)

// Disposition is the router's sole output: exactly one handler downstream
// acts on it depending on Kind.
type Disposition struct {
	Kind Kind

	// KindStatic / KindUpload / KindDelete: resolved filesystem path.
	Path string

	// KindStatic only: set when Path names a directory to be autoindexed
	// rather than a file to be read; URIPath is the request path to build
	// listing hrefs against.
	IsDir   bool
	URIPath string

	// KindRedirect.
	RedirectCode int
	RedirectURL  string

	// KindCGI.
	Interpreter string
	ScriptPath  string

	// KindError.
	Status int

	// Common to every kind: the vhost and location that produced this
	// disposition, needed by handlers to resolve roots, error pages, and
	// cgi_param overrides.
	VHost    *config.VHostConfig
	Location *config.LocationConfig

	// AllowHeader is populated only alongside a 405 KindError, carrying the
	// Allow: header value for the method gate violation.
	AllowHeader string
}

func errorDisposition(status int, vhost *config.VHostConfig) Disposition {
	return Disposition{Kind: KindError, Status: status, VHost: vhost}
}
