package cgi

import (
	"strings"
	"testing"
)

func envValue(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix), true
		}
	}
	return "", false
}

func TestBuildEnvFixedAndHeaderFields(t *testing.T) {
	info := RequestInfo{
		Method:      "GET",
		ScriptFile:  "/srv/www/cgi-bin/hello.py",
		URIPath:     "/cgi-bin/hello.py",
		RequestURI:  "/cgi-bin/hello.py?x=1",
		QueryString: "x=1",
		ServerName:  "example.com",
		ServerPort:  "8080",
		RemoteAddr:  "127.0.0.1",
		Headers:     map[string]string{"User-Agent": "curl/8.0"},
	}
	env := BuildEnv(info, nil)

	if v, ok := envValue(env, "REQUEST_METHOD"); !ok || v != "GET" {
		t.Fatalf("REQUEST_METHOD = %q, %v", v, ok)
	}
	if v, ok := envValue(env, "HTTP_USER_AGENT"); !ok || v != "curl/8.0" {
		t.Fatalf("HTTP_USER_AGENT = %q, %v", v, ok)
	}
	if _, ok := envValue(env, "CONTENT_LENGTH"); ok {
		t.Fatalf("CONTENT_LENGTH set on a GET request")
	}
}

func TestBuildEnvPostCarriesContentFields(t *testing.T) {
	info := RequestInfo{
		Method:        "POST",
		ContentLength: "42",
		ContentType:   "application/x-www-form-urlencoded",
	}
	env := BuildEnv(info, nil)
	if v, _ := envValue(env, "CONTENT_LENGTH"); v != "42" {
		t.Fatalf("CONTENT_LENGTH = %q", v)
	}
	if v, _ := envValue(env, "CONTENT_TYPE"); v != "application/x-www-form-urlencoded" {
		t.Fatalf("CONTENT_TYPE = %q", v)
	}
}

func TestBuildEnvCgiParamOverridesComputed(t *testing.T) {
	info := RequestInfo{Method: "GET"}
	env := BuildEnv(info, map[string]string{"REQUEST_METHOD": "OVERRIDDEN"})
	if v, _ := envValue(env, "REQUEST_METHOD"); v != "OVERRIDDEN" {
		t.Fatalf("REQUEST_METHOD = %q, want OVERRIDDEN", v)
	}
}

func TestBuildEnvSkipsArgvParams(t *testing.T) {
	env := BuildEnv(RequestInfo{}, map[string]string{"ARGV:0": "--verbose"})
	if _, ok := envValue(env, "ARGV:0"); ok {
		t.Fatalf("ARGV: param leaked into the environment")
	}
}

func TestExtraArgvOrdersByIndex(t *testing.T) {
	argv := ExtraArgv(map[string]string{
		"ARGV:1": "second",
		"ARGV:0": "first",
		"OTHER":  "ignored",
	})
	if len(argv) != 2 || argv[0] != "first" || argv[1] != "second" {
		t.Fatalf("argv = %v", argv)
	}
}
