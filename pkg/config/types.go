// Package config holds the data model consumed by the router and the
// directive-file loader that builds it. Full directive validation is an
// external concern; this package implements the directive grammar needed
// to build that data model.
package config

// ListeningEndpoint is a bound address with an ordered group of virtual
// hosts. Index 0 is the default vhost for that endpoint.
type ListeningEndpoint struct {
	Address string
	VHosts  []*VHostConfig
}

// VHostConfig is one server block.
type VHostConfig struct {
	ServerNames       []string
	Host              string
	Root              string
	Index             []string
	ClientMaxBodySize int64
	Autoindex         bool
	ErrorPages        map[int]string
	ErrorPageDir      string
	Locations         []*LocationConfig
}

// Matches reports whether host (already lowercased, port stripped) selects
// this vhost.
func (v *VHostConfig) Matches(host string) bool {
	if len(v.ServerNames) > 0 {
		for _, name := range v.ServerNames {
			if name == host {
				return true
			}
		}
		return false
	}
	return v.Host != "" && v.Host == host
}

// Redirect describes a location's `return CODE URL` directive.
type Redirect struct {
	Code int
	URL  string
}

// Upload describes a location's `upload_store`/`upload_create_dirs` pair.
type Upload struct {
	Store      string
	CreateDirs bool
}

// LocationConfig is one location block, scoped to a URI prefix (Mount).
type LocationConfig struct {
	Mount             string
	Root              string
	Index             []string
	Methods           []string
	ClientMaxBodySize int64
	Autoindex         bool
	AutoindexSet      bool
	Allow             []string
	Deny              []string
	CgiPass           map[string]string
	CgiParams         map[string]string
	Upload            *Upload
	Return            *Redirect
}

// IsCGI reports whether uri (path only, pre-query) dispatches to the CGI
// subsystem under this location.
func (l *LocationConfig) IsCGI(uriPath string) (interpreter string, ok bool) {
	if l == nil {
		return "", false
	}
	ext := extensionOf(uriPath)
	if prog, found := l.CgiPass[ext]; found && ext != "" {
		return prog, true
	}
	if prog, found := l.CgiPass[".*"]; found {
		return prog, true
	}
	if containsCgiBin(uriPath) {
		return l.CgiPass[".*"], true
	}
	switch ext {
	case ".py", ".php", ".pl", ".cgi", ".sh":
		return l.CgiPass[ext], true
	}
	return "", false
}

func extensionOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		switch p[i] {
		case '.':
			return p[i:]
		case '/':
			return ""
		}
	}
	return ""
}

func containsCgiBin(p string) bool {
	const marker = "/cgi-bin/"
	if len(p) < len(marker) {
		return false
	}
	for i := 0; i+len(marker) <= len(p); i++ {
		if p[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

// AllowedMethods returns the active method set for this location: explicit
// limit_except if set, else {GET,HEAD,POST,DELETE}.
func (l *LocationConfig) AllowedMethods() []string {
	if l != nil && len(l.Methods) > 0 {
		methods := append([]string{}, l.Methods...)
		hasGet, hasHead := false, false
		for _, m := range methods {
			if m == "GET" {
				hasGet = true
			}
			if m == "HEAD" {
				hasHead = true
			}
		}
		if hasGet && !hasHead {
			methods = append(methods, "HEAD")
		}
		return methods
	}
	return []string{"GET", "HEAD", "POST", "DELETE"} // default set; GET implies HEAD
}

// EffectiveMaxBodySize resolves the body-size limit: location max if set
// (>0), else vhost max.
func EffectiveMaxBodySize(loc *LocationConfig, vhost *VHostConfig) int64 {
	if loc != nil && loc.ClientMaxBodySize > 0 {
		return loc.ClientMaxBodySize
	}
	if vhost != nil {
		return vhost.ClientMaxBodySize
	}
	return 0
}

// EffectiveAutoindex resolves the autoindex flag: location override if set,
// else the vhost default.
func EffectiveAutoindex(loc *LocationConfig, vhost *VHostConfig) bool {
	if loc != nil && loc.AutoindexSet {
		return loc.Autoindex
	}
	if vhost != nil {
		return vhost.Autoindex
	}
	return false
}
