package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/mattn/go-shellwords"
)

// Loader builds the listening-endpoint tree from a configuration source.
// Full grammar validation is an external collaborator; this default
// implementation covers the directive set described below.
type Loader interface {
	Load(path string) ([]*ListeningEndpoint, error)
}

// DirectiveLoader is the default Loader: a line-oriented, brace-nested
// directive reader. Each line is tokenized with go-shellwords so quoted
// values (paths with spaces, `return` URLs) survive intact.
type DirectiveLoader struct{}

// NewDirectiveLoader returns the default directive-file Loader.
func NewDirectiveLoader() *DirectiveLoader {
	return &DirectiveLoader{}
}

// block is one `name args… { … }` or `name args…;`-style directive, nested
// by brace depth.
type block struct {
	name     string
	args     []string
	children []*block
}

func (l *DirectiveLoader) Load(path string) ([]*ListeningEndpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer f.Close()

	root, err := parseBlocks(f)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	endpoints := make(map[string]*ListeningEndpoint)
	var order []string
	for _, b := range root {
		if b.name != "server" {
			continue
		}
		vhost, listens, err := buildVHost(b)
		if err != nil {
			return nil, err
		}
		for _, addr := range listens {
			ep, ok := endpoints[addr]
			if !ok {
				ep = &ListeningEndpoint{Address: addr}
				endpoints[addr] = ep
				order = append(order, addr)
			}
			ep.VHosts = append(ep.VHosts, vhost)
		}
	}

	result := make([]*ListeningEndpoint, 0, len(order))
	for _, addr := range order {
		result = append(result, endpoints[addr])
	}
	return result, nil
}

func parseBlocks(r io.Reader) ([]*block, error) {
	tokenizer := shellwords.NewParser()
	tokenizer.ParseEnv = false
	tokenizer.ParseBacktick = false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var stack []*block
	var roots []*block
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		closesBlock := false
		if raw == "}" {
			closesBlock = true
		} else if strings.HasSuffix(raw, "}") {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "}"))
			closesBlock = true
		}
		opensBlock := strings.HasSuffix(raw, "{")
		if opensBlock {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, "{"))
		}
		raw = strings.TrimSuffix(raw, ";")
		if raw != "" {
			tokens, err := tokenizer.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("bad directive %q: %w", raw, err)
			}
			if len(tokens) > 0 {
				b := &block{name: tokens[0], args: tokens[1:]}
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					top.children = append(top.children, b)
				} else {
					roots = append(roots, b)
				}
				if opensBlock {
					stack = append(stack, b)
				}
			}
		}
		if closesBlock && len(stack) > 0 {
			stack = stack[:len(stack)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unbalanced braces in config")
	}
	return roots, nil
}

func buildVHost(b *block) (*VHostConfig, []string, error) {
	v := &VHostConfig{
		ErrorPages: make(map[int]string),
	}
	var listens []string
	for _, c := range b.children {
		switch c.name {
		case "listen":
			if len(c.args) > 0 {
				listens = append(listens, c.args[0])
			}
		case "server_name":
			v.ServerNames = append(v.ServerNames, c.args...)
			if len(c.args) > 0 {
				v.Host = c.args[0]
			}
		case "root":
			if len(c.args) > 0 {
				v.Root = c.args[0]
			}
		case "index":
			v.Index = append(v.Index, c.args...)
		case "autoindex":
			v.Autoindex = len(c.args) > 0 && c.args[0] == "on"
		case "client_max_body_size":
			if len(c.args) > 0 {
				size, err := units.RAMInBytes(c.args[0])
				if err != nil {
					return nil, nil, fmt.Errorf("bad client_max_body_size: %w", err)
				}
				v.ClientMaxBodySize = size
			}
		case "error_page":
			if len(c.args) >= 2 {
				uri := c.args[len(c.args)-1]
				for _, codeStr := range c.args[:len(c.args)-1] {
					if code, err := strconv.Atoi(codeStr); err == nil {
						v.ErrorPages[code] = uri
					}
				}
			}
		case "error_page_dir":
			if len(c.args) > 0 {
				v.ErrorPageDir = c.args[0]
			}
		case "location":
			loc, err := buildLocation(c)
			if err != nil {
				return nil, nil, err
			}
			v.Locations = append(v.Locations, loc)
		}
	}
	if v.Host == "" && len(b.args) > 0 {
		v.Host = b.args[0]
	}
	return v, listens, nil
}

func buildLocation(b *block) (*LocationConfig, error) {
	loc := &LocationConfig{
		CgiPass:   make(map[string]string),
		CgiParams: make(map[string]string),
	}
	if len(b.args) > 0 {
		loc.Mount = b.args[0]
	}
	for _, c := range b.children {
		switch c.name {
		case "root":
			if len(c.args) > 0 {
				loc.Root = c.args[0]
			}
		case "index":
			loc.Index = append(loc.Index, c.args...)
		case "autoindex":
			loc.AutoindexSet = true
			loc.Autoindex = len(c.args) > 0 && c.args[0] == "on"
		case "client_max_body_size":
			if len(c.args) > 0 {
				size, err := units.RAMInBytes(c.args[0])
				if err != nil {
					return nil, fmt.Errorf("bad client_max_body_size: %w", err)
				}
				loc.ClientMaxBodySize = size
			}
		case "limit_except":
			for _, m := range c.args {
				loc.Methods = append(loc.Methods, strings.ToUpper(m))
			}
		case "allow":
			loc.Allow = append(loc.Allow, c.args...)
		case "deny":
			loc.Deny = append(loc.Deny, c.args...)
		case "cgi_pass":
			switch len(c.args) {
			case 1:
				loc.CgiPass[".*"] = c.args[0]
			case 2:
				loc.CgiPass[c.args[0]] = c.args[1]
			}
		case "cgi_param":
			if len(c.args) >= 2 {
				loc.CgiParams[c.args[0]] = strings.Join(c.args[1:], " ")
			}
		case "upload_store":
			if loc.Upload == nil {
				loc.Upload = &Upload{}
			}
			if len(c.args) > 0 {
				loc.Upload.Store = c.args[0]
			}
		case "upload_create_dirs":
			if loc.Upload == nil {
				loc.Upload = &Upload{}
			}
			loc.Upload.CreateDirs = len(c.args) > 0 && c.args[0] == "on"
		case "return":
			if len(c.args) >= 2 {
				if code, err := strconv.Atoi(c.args[0]); err == nil {
					loc.Return = &Redirect{Code: code, URL: c.args[1]}
				}
			}
		}
	}
	return loc, nil
}
