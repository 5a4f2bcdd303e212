package router

import (
	"strings"

	"github.com/Maruffly/webserv-sub000/pkg/config"
	"github.com/Maruffly/webserv-sub000/pkg/wire"
)

// PathStat is the filesystem collaborator the router needs to decide
// between "serve file", "autoindex/index directory", and 404. It is
// satisfied by the OS-backed implementation in pkg/handlers, kept here to
// avoid handlers importing router importing handlers.
type PathStat interface {
	// Stat reports whether path exists and, if so, whether it is a
	// directory.
	Stat(path string) (exists bool, isDir bool)
}

// Request is the subset of request data the router needs; it is built by
// the caller from a connection.Connection once its state reaches Ready.
type Request struct {
	Method  string
	Target  string
	Version string
	Host       string // Host header value, unparsed
	Headers    map[string]string
	BodyLen    int
	RemoteAddr string
	// LimitExceeded mirrors connection.Connection.LimitExceeded: body
	// already known to exceed the global ceiling.
	LimitExceeded bool
}

// Route resolves endpoint+req to a Disposition.
func Route(endpoint *config.ListeningEndpoint, req *Request, stat PathStat) Disposition {
	if req.Version != "HTTP/1.1" && req.Version != "HTTP/1.0" {
		return errorDisposition(505, selectVHost(endpoint, req.Host))
	}

	vhost := selectVHost(endpoint, req.Host)
	uriPath := splitTarget(req.Target)

	loc := selectLocation(vhost, uriPath)

	if !ipAllowed(loc, req.RemoteAddr) {
		d := errorDisposition(403, vhost)
		d.Location = loc
		return d
	}

	methods := loc.AllowedMethods()
	if !methodAllowed(methods, req.Method) {
		d := errorDisposition(405, vhost)
		d.Location = loc
		d.AllowHeader = strings.Join(methods, ", ")
		return d
	}

	max := config.EffectiveMaxBodySize(loc, vhost)
	if req.Method == "POST" {
		_, hasCL := req.Headers["content-length"]
		_, hasTE := req.Headers["transfer-encoding"]
		if !hasCL && !hasTE && req.BodyLen == 0 {
			d := errorDisposition(411, vhost)
			d.Location = loc
			return d
		}
	}
	if req.LimitExceeded || (max > 0 && int64(req.BodyLen) > max) {
		d := errorDisposition(413, vhost)
		d.Location = loc
		return d
	}

	root := effectiveRoot(loc, vhost)

	// 1. return redirect.
	if loc != nil && loc.Return != nil && loc.Return.Code >= 300 && loc.Return.Code <= 399 {
		return Disposition{
			Kind:         KindRedirect,
			RedirectCode: loc.Return.Code,
			RedirectURL:  loc.Return.URL,
			VHost:        vhost,
			Location:     loc,
		}
	}

	// 2. DELETE.
	if req.Method == "DELETE" {
		if loc != nil {
			if _, isCGI := loc.IsCGI(uriPath); isCGI {
				d := errorDisposition(403, vhost)
				d.Location = loc
				return d
			}
		}
		resolved, ok := resolvePath(uriPath, mountOf(loc), root)
		if !ok {
			d := errorDisposition(403, vhost)
			d.Location = loc
			return d
		}
		return Disposition{Kind: KindDelete, Path: resolved, VHost: vhost, Location: loc}
	}

	isCGI, interpreter := false, ""
	if loc != nil {
		interpreter, isCGI = loc.IsCGI(uriPath)
	}

	// 3. POST, not CGI.
	if req.Method == "POST" && !isCGI {
		resolved, ok := resolvePath(uriPath, mountOf(loc), root)
		if !ok {
			d := errorDisposition(403, vhost)
			d.Location = loc
			return d
		}
		return Disposition{Kind: KindUpload, Path: resolved, VHost: vhost, Location: loc}
	}

	// 4. CGI.
	if isCGI {
		resolved, ok := resolvePath(uriPath, mountOf(loc), root)
		if !ok {
			d := errorDisposition(403, vhost)
			d.Location = loc
			return d
		}
		return Disposition{
			Kind:        KindCGI,
			Interpreter: interpreter,
			ScriptPath:  resolved,
			VHost:       vhost,
			Location:    loc,
		}
	}

	// 5-7. static file, directory, or 404.
	resolved, ok := resolvePath(uriPath, mountOf(loc), root)
	if !ok {
		d := errorDisposition(403, vhost)
		d.Location = loc
		return d
	}
	exists, isDir := stat.Stat(resolved)
	if exists && !isDir {
		return Disposition{Kind: KindStatic, Path: resolved, VHost: vhost, Location: loc}
	}
	if exists && isDir {
		if config.EffectiveAutoindex(loc, vhost) {
			return Disposition{Kind: KindStatic, Path: resolved, IsDir: true, URIPath: uriPath, VHost: vhost, Location: loc}
		}
		index := indexList(loc, vhost)
		for _, name := range index {
			candidate := strings.TrimRight(resolved, "/") + "/" + name
			if ex, dir := stat.Stat(candidate); ex && !dir {
				return Disposition{Kind: KindStatic, Path: candidate, VHost: vhost, Location: loc}
			}
		}
		d := errorDisposition(403, vhost)
		d.Location = loc
		return d
	}
	d := errorDisposition(404, vhost)
	d.Location = loc
	return d
}

func selectVHost(endpoint *config.ListeningEndpoint, hostHeader string) *config.VHostConfig {
	if endpoint == nil || len(endpoint.VHosts) == 0 {
		return nil
	}
	host := strings.ToLower(hostHeader)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, v := range endpoint.VHosts {
		if v.Matches(host) {
			return v
		}
	}
	return endpoint.VHosts[0]
}

func selectLocation(vhost *config.VHostConfig, uriPath string) *config.LocationConfig {
	if vhost == nil {
		return nil
	}
	var best *config.LocationConfig
	for _, loc := range vhost.Locations {
		if loc.Mount == "" {
			continue
		}
		if strings.HasPrefix(uriPath, loc.Mount) {
			if best == nil || len(loc.Mount) > len(best.Mount) {
				best = loc
			}
		}
	}
	return best
}

func methodAllowed(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func mountOf(loc *config.LocationConfig) string {
	if loc == nil {
		return ""
	}
	return loc.Mount
}

func effectiveRoot(loc *config.LocationConfig, vhost *config.VHostConfig) string {
	if loc != nil && loc.Root != "" {
		return loc.Root
	}
	if vhost != nil {
		return vhost.Root
	}
	return ""
}

func indexList(loc *config.LocationConfig, vhost *config.VHostConfig) []string {
	if loc != nil && len(loc.Index) > 0 {
		return loc.Index
	}
	if vhost != nil {
		return vhost.Index
	}
	return nil
}

// FromHead builds a Request from a parsed wire.RequestHead plus body
// metadata, the shape connection.Connection exposes once a request reaches
// Ready.
func FromHead(head *wire.RequestHead, bodyLen int, limitExceeded bool) *Request {
	host, _ := head.Header("host")
	return &Request{
		Method:        head.Method,
		Target:        head.Target,
		Version:       head.Version,
		Host:          host,
		Headers:       head.Headers,
		BodyLen:       bodyLen,
		LimitExceeded: limitExceeded,
	}
}
