package eventloop

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Maruffly/webserv-sub000/pkg/cgi"
	"github.com/Maruffly/webserv-sub000/pkg/config"
	"github.com/Maruffly/webserv-sub000/pkg/connection"
	"github.com/Maruffly/webserv-sub000/pkg/errorpage"
	"github.com/Maruffly/webserv-sub000/pkg/handlers"
	"github.com/Maruffly/webserv-sub000/pkg/logging"
	"github.com/Maruffly/webserv-sub000/pkg/metrics"
	"github.com/Maruffly/webserv-sub000/pkg/router"
	"github.com/Maruffly/webserv-sub000/pkg/session"
	"github.com/Maruffly/webserv-sub000/pkg/wire"
)

// Config tunes the engine's resource limits and sweep intervals.
type Config struct {
	GlobalMaxBody  int64
	MaxCGIProcs    int64
	CGITimeout     time.Duration
	HeaderTimeout  time.Duration
	IdleTimeout    time.Duration
	SessionIdle    time.Duration
	PollTimeoutMs  int
}

// DefaultConfig returns the engine's default limits. The directive loader
// has no directives for these values.
func DefaultConfig() Config {
	return Config{
		GlobalMaxBody: 8 << 20,
		MaxCGIProcs:   16,
		CGITimeout:    30 * time.Second,
		HeaderTimeout: 60 * time.Second,
		IdleTimeout:   75 * time.Second,
		SessionIdle:   session.DefaultIdleTimeout,
		PollTimeoutMs: 1000,
	}
}

type connEntry struct {
	conn        *connection.Connection
	endpoint    *config.ListeningEndpoint
	awaitingCGI bool
}

type cgiEntry struct {
	proc   *cgi.Process
	connFd int
	start  time.Time
}

// Engine is the single-threaded readiness loop: it owns the poller and
// every connection/CGI fd registered with it, and is the only goroutine
// that ever touches connection or CGI state, including the session sweep.
// Background goroutines (signal watcher, metrics logger) only ever set the
// stop flag or read the atomic metrics counters; they never reach into
// these maps directly.
type Engine struct {
	poller Poller
	log    logging.Logger
	cfg    Config
	fs     handlers.FileSystem

	listeners map[int]*config.ListeningEndpoint
	conns     map[int]*connEntry
	cgiStdout map[int]*cgiEntry
	cgiStdin  map[int]*cgiEntry

	sessions   *session.Store
	admission  *cgi.Admission
	metrics    *metrics.Counters
	lastReap    time.Time
	lastSweep   time.Time
	lastCleanup time.Time

	stopped atomic.Bool
}

// New builds an Engine with no listening sockets. Callers must call Listen
// to bind the endpoints and then Run to start serving.
func New(log logging.Logger, cfg Config) *Engine {
	return &Engine{
		log:       log,
		cfg:       cfg,
		fs:        handlers.OSFileSystem{},
		listeners: make(map[int]*config.ListeningEndpoint),
		conns:     make(map[int]*connEntry),
		cgiStdout: make(map[int]*cgiEntry),
		cgiStdin:  make(map[int]*cgiEntry),
		sessions:  session.New(cfg.SessionIdle),
		metrics:   &metrics.Counters{},
		admission: cgi.NewAdmission(cfg.MaxCGIProcs),
	}
}

// Metrics returns the engine's counter set, for wiring into a periodic
// metrics.LogPeriodically goroutine.
func (e *Engine) Metrics() *metrics.Counters { return e.metrics }

// Listen opens and registers a listening socket for each endpoint's
// address. Call once before Run.
func (e *Engine) Listen(endpoints []*config.ListeningEndpoint) error {
	p, err := NewPoller()
	if err != nil {
		return fmt.Errorf("eventloop: create poller: %w", err)
	}
	e.poller = p

	for _, ep := range endpoints {
		lfd, err := listenFd(ep.Address)
		if err != nil {
			return fmt.Errorf("eventloop: listen %s: %w", ep.Address, err)
		}
		if err := e.poller.Add(lfd, false); err != nil {
			return fmt.Errorf("eventloop: register listener %s: %w", ep.Address, err)
		}
		e.listeners[lfd] = ep
		e.log.WithField("address", ep.Address).Info("listening")
	}
	return nil
}

func listenFd(address string) (int, error) {
	laddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return -1, err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return -1, err
	}
	file, err := ln.File()
	if err != nil {
		ln.Close()
		return -1, err
	}
	// The dup'd fd from File() survives ln.Close(), but file closes it once
	// file is collected; dup it again so the caller owns a descriptor that
	// nothing else closes.
	ln.Close()
	fd, err := unix.Dup(int(file.Fd()))
	file.Close()
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Stop requests the loop exit after its current iteration. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

// WatchSignals stops the engine on SIGINT/SIGTERM. Runs in its own
// goroutine outside the loop; it only ever touches the atomic stop flag.
func (e *Engine) WatchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		e.log.Info("shutdown signal received")
		e.Stop()
	}()
}

// Run drives the readiness loop until Stop is called. It closes every
// open connection and CGI child before returning.
func (e *Engine) Run() error {
	e.lastReap = time.Now()
	e.lastSweep = time.Now()
	e.lastCleanup = time.Now()

	for !e.stopped.Load() {
		events, err := e.poller.Wait(e.cfg.PollTimeoutMs)
		if err != nil {
			return fmt.Errorf("eventloop: poll: %w", err)
		}
		for _, ev := range events {
			e.dispatchEvent(ev)
		}
		e.periodic()
	}
	e.shutdown()
	return nil
}

func (e *Engine) dispatchEvent(ev Event) {
	if _, isListener := e.listeners[ev.Fd]; isListener {
		e.acceptAll(ev.Fd)
		return
	}
	if entry, ok := e.cgiStdout[ev.Fd]; ok {
		if ev.Readable || ev.Error {
			e.drainCGI(entry)
		}
		return
	}
	if entry, ok := e.cgiStdin[ev.Fd]; ok {
		if ev.Writable || ev.Error {
			e.feedCGI(entry)
		}
		return
	}
	if entry, ok := e.conns[ev.Fd]; ok {
		if ev.Error {
			e.purgeConn(ev.Fd)
			return
		}
		if ev.Readable {
			e.readConn(ev.Fd, entry)
		}
		if entry2, still := e.conns[ev.Fd]; still && ev.Writable {
			e.writeConn(ev.Fd, entry2)
		}
	}
}

func (e *Engine) acceptAll(lfd int) {
	endpoint := e.listeners[lfd]
	for {
		nfd, _, err := unix.Accept(lfd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			e.log.WithError(err).Warn("accept failed")
			return
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		remote := remoteAddrOf(nfd)
		conn := connection.New(nfd, remote, connection.Limits{GlobalMaxBody: e.cfg.GlobalMaxBody})
		if err := e.poller.Add(nfd, false); err != nil {
			unix.Close(nfd)
			continue
		}
		e.conns[nfd] = &connEntry{conn: conn, endpoint: endpoint}
		e.metrics.IncConnections()
	}
}

func remoteAddrOf(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", sa4.Addr[0], sa4.Addr[1], sa4.Addr[2], sa4.Addr[3], sa4.Port)
	}
	return ""
}

const readChunk = 16 * 1024

func (e *Engine) readConn(fd int, entry *connEntry) {
	if entry.awaitingCGI {
		return
	}
	buf := make([]byte, readChunk)
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		e.purgeConn(fd)
		return
	}
	if n == 0 {
		e.purgeConn(fd)
		return
	}
	entry.conn.Feed(buf[:n])

	for {
		ready, perr := entry.conn.Advance()
		if perr != nil {
			e.respondError(fd, entry, perr.Status, true)
			return
		}
		if !ready {
			return
		}
		if entry.conn.LimitExceeded {
			e.respondError(fd, entry, 413, true)
			return
		}
		e.dispatch(fd, entry)
		if entry.awaitingCGI {
			return
		}
		if entry.conn.State() != connection.ReadingHeaders {
			// The response is queued and the state stays Ready until
			// writeConn resets it, so each request is routed only once.
			return
		}
	}
}

func (e *Engine) dispatch(fd int, entry *connEntry) {
	conn := entry.conn
	sessionID, shouldSet := e.sessions.Ensure(headerValue(conn.Head, "cookie"), fd)
	conn.SessionID = sessionID
	conn.ShouldSetCookie = shouldSet
	conn.KeepAlive = conn.DeriveKeepAlive()

	req := router.FromHead(conn.Head, len(conn.Body), conn.LimitExceeded)
	req.RemoteAddr = conn.RemoteAddr
	disp := router.Route(entry.endpoint, req, statAdapter{fs: e.fs})

	switch disp.Kind {
	case router.KindCGI:
		e.dispatchCGI(fd, entry, disp, req)
	default:
		status, headers, body := e.render(disp, conn)
		e.finishResponse(fd, entry, status, headers, body)
	}
}

// statAdapter narrows handlers.FileSystem to router.PathStat.
type statAdapter struct{ fs handlers.FileSystem }

func (s statAdapter) Stat(path string) (bool, bool) { return s.fs.Stat(path) }

func (e *Engine) render(disp router.Disposition, conn *connection.Connection) (int, map[string]string, []byte) {
	switch disp.Kind {
	case router.KindStatic:
		if disp.IsDir {
			body, err := handlers.Autoindex(e.fs, disp.Path, disp.URIPath)
			if err != nil {
				return e.renderError(disp, 403)
			}
			headers := map[string]string{"Content-Type": "text/html", "Content-Length": strconv.Itoa(len(body))}
			if conn.Head.Method == "HEAD" {
				body = nil
			}
			return 200, headers, body
		}
		res, err := handlers.ServeStatic(e.fs, disp.Path, conn.Head.Method == "HEAD")
		if err != nil {
			return e.renderError(disp, 404)
		}
		headers := map[string]string{"Content-Type": res.ContentType, "Content-Length": strconv.Itoa(res.ContentLength)}
		return res.Status, headers, res.Body

	case router.KindUpload:
		target, err := handlers.ResolveUploadTarget(e.fs, disp.Location, disp.Path)
		if err != nil {
			return e.renderError(disp, 500)
		}
		ct, _ := conn.Head.Header("content-type")
		res, err := handlers.HandleUpload(e.fs, target, ct, conn.Body)
		if err != nil {
			return e.renderError(disp, 500)
		}
		return res.Status, map[string]string{"Content-Type": "text/html"}, res.Body

	case router.KindDelete:
		res := handlers.HandleDelete(e.fs, disp.Path)
		if res.Status != 204 {
			return e.renderError(disp, res.Status)
		}
		return 204, map[string]string{}, nil

	case router.KindRedirect:
		return disp.RedirectCode, map[string]string{"Location": disp.RedirectURL}, nil

	case router.KindError:
		return e.renderError(disp, disp.Status)
	}
	return e.renderError(disp, 500)
}

func (e *Engine) renderError(disp router.Disposition, status int) (int, map[string]string, []byte) {
	resp := errorpage.Resolve(e.fs, disp.VHost, status)
	headers := errorpage.Headers()
	headers["Content-Type"] = resp.ContentType
	if disp.AllowHeader != "" {
		headers["Allow"] = disp.AllowHeader
	}
	return resp.Status, headers, resp.Body
}

func hasHeaderFold(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func headerValue(head *wire.RequestHead, name string) string {
	if head == nil {
		return ""
	}
	v, _ := head.Header(name)
	return v
}

// http1123Format is the Date header's wire format (RFC 7231 §7.1.1.1).
const http1123Format = "Mon, 02 Jan 2006 15:04:05 GMT"

func (e *Engine) finishResponse(fd int, entry *connEntry, status int, headers map[string]string, body []byte) {
	conn := entry.conn
	if _, ok := headers["Server"]; !ok {
		headers["Server"] = "webserv/1.0"
	}
	if _, ok := headers["Date"]; !ok {
		headers["Date"] = time.Now().UTC().Format(http1123Format)
	}
	forceClose := status >= 400
	keepAlive := conn.KeepAlive && !forceClose
	if !keepAlive {
		headers["Connection"] = "close"
	} else {
		headers["Connection"] = "keep-alive"
	}
	if conn.ShouldSetCookie {
		headers["Set-Cookie"] = session.CookieHeaderValue(conn.SessionID)
	}
	reason := errorpage.StatusText(status)
	raw := wire.EncodeResponse(status, reason, headers, body)
	conn.EnqueueResponse(raw)
	conn.KeepAlive = keepAlive
	e.metrics.AddRequest(len(body))

	e.log.WithField("method", headOrEmpty(conn)).
		WithField("status", status).
		WithField("bytes", len(body)).
		WithField("session", conn.SessionID).
		WithField("duration", time.Since(conn.HeaderStart)).
		Debug("request handled")

	if err := e.poller.Modify(fd, true); err != nil {
		e.purgeConn(fd)
	}
}

func headOrEmpty(conn *connection.Connection) string {
	if conn.Head == nil {
		return ""
	}
	return conn.Head.Method + " " + conn.Head.Target
}

func (e *Engine) respondError(fd int, entry *connEntry, status int, forceClose bool) {
	resp := errorpage.Resolve(e.fs, entry.endpoint.VHosts[0], status)
	headers := errorpage.Headers()
	headers["Content-Type"] = resp.ContentType
	raw := wire.EncodeResponse(resp.Status, errorpage.StatusText(resp.Status), headers, resp.Body)
	entry.conn.EnqueueResponse(raw)
	entry.conn.KeepAlive = false
	if err := e.poller.Modify(fd, true); err != nil {
		e.purgeConn(fd)
	}
}

func (e *Engine) writeConn(fd int, entry *connEntry) {
	conn := entry.conn
	if !conn.WriteArmed() {
		return
	}
	n, err := unix.Write(fd, conn.OutBuffer[conn.OutOffset:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return
		}
		e.purgeConn(fd)
		return
	}
	conn.Advanced(n)
	if !conn.ResponseFullyWritten() {
		return
	}
	if !conn.KeepAlive {
		e.purgeConn(fd)
		return
	}
	conn.ResetForKeepAlive()
	if err := e.poller.Modify(fd, false); err != nil {
		e.purgeConn(fd)
	}
}

// purge is the single cleanup entry point for a connection fd: remove it
// from the poller, close the socket, and drop its state.
func (e *Engine) purgeConn(fd int) {
	if entry, ok := e.conns[fd]; ok {
		if cgiE, ok := entry.conn.CGI.(*cgiEntry); ok {
			e.abandonCGI(cgiE)
		}
	}
	e.poller.Remove(fd)
	unix.Close(fd)
	delete(e.conns, fd)
	e.metrics.DecConnections()
}

func (e *Engine) abandonCGI(entry *cgiEntry) {
	e.poller.Remove(entry.proc.StdoutFD())
	if sfd := entry.proc.StdinFD(); sfd >= 0 {
		e.poller.Remove(sfd)
		delete(e.cgiStdin, sfd)
	}
	delete(e.cgiStdout, entry.proc.StdoutFD())
	entry.proc.Kill()
	entry.proc.Reap()
	entry.proc.Close()
	e.admission.Release()
	e.metrics.DecCGI()
}

func (e *Engine) dispatchCGI(fd int, entry *connEntry, disp router.Disposition, req *router.Request) {
	if !e.admission.TryAcquire() {
		status, headers, body := e.renderError(disp, 503)
		e.finishResponse(fd, entry, status, headers, body)
		return
	}

	host, port := splitHostPort(req.Host)
	uriPath := req.Target
	if idx := strings.IndexByte(uriPath, '?'); idx >= 0 {
		uriPath = uriPath[:idx]
	}
	info := cgi.RequestInfo{
		Method:        req.Method,
		ScriptFile:    disp.ScriptPath,
		URIPath:       uriPath,
		RequestURI:    req.Target,
		ServerName:    host,
		ServerPort:    port,
		RemoteAddr:    entry.conn.RemoteAddr,
		DocumentRoot:  disp.Location.Root,
		ContentType:   headerValue(entry.conn.Head, "content-type"),
		ContentLength: strconv.Itoa(len(entry.conn.Body)),
		Headers:       req.Headers,
	}
	if idx := strings.IndexByte(req.Target, '?'); idx >= 0 {
		info.QueryString = req.Target[idx+1:]
	}

	var cgiParams map[string]string
	if disp.Location != nil {
		cgiParams = disp.Location.CgiParams
	}
	env := cgi.BuildEnv(info, cgiParams)
	argv := cgi.ExtraArgv(cgiParams)

	proc, err := cgi.Spawn(disp.ScriptPath, disp.Interpreter, argv, env, entry.conn.Body)
	if err != nil {
		e.admission.Release()
		status, headers, body := e.renderError(disp, 500)
		e.finishResponse(fd, entry, status, headers, body)
		return
	}

	ce := &cgiEntry{proc: proc, connFd: fd, start: time.Now()}
	entry.awaitingCGI = true
	entry.conn.CGI = ce

	e.cgiStdout[proc.StdoutFD()] = ce
	e.poller.Add(proc.StdoutFD(), false)
	if sfd := proc.StdinFD(); sfd >= 0 {
		e.cgiStdin[sfd] = ce
		e.poller.Add(sfd, true)
	}
	e.poller.Remove(fd)
	e.metrics.IncCGI()
}

func splitHostPort(hostHeader string) (host, port string) {
	host = hostHeader
	port = "80"
	if i := strings.LastIndexByte(hostHeader, ':'); i >= 0 {
		host, port = hostHeader[:i], hostHeader[i+1:]
	}
	return host, port
}

func (e *Engine) feedCGI(entry *cgiEntry) {
	done, retry, err := entry.proc.FeedStdin()
	if retry {
		return
	}
	if err != nil {
		e.failCGI(entry, 500)
		return
	}
	if done {
		delete(e.cgiStdin, entry.proc.StdinFD())
	}
}

func (e *Engine) drainCGI(entry *cgiEntry) {
	eof, retry, err := entry.proc.DrainStdout()
	if retry {
		return
	}
	if err != nil {
		e.failCGI(entry, 502)
		return
	}
	if !eof {
		return
	}
	e.completeCGI(entry)
}

func (e *Engine) completeCGI(entry *cgiEntry) {
	e.poller.Remove(entry.proc.StdoutFD())
	delete(e.cgiStdout, entry.proc.StdoutFD())
	if sfd := entry.proc.StdinFD(); sfd >= 0 {
		e.poller.Remove(sfd)
		delete(e.cgiStdin, sfd)
	}
	// Stdout EOF means the child has closed its end; the wait here is
	// bounded by the kernel, not by the child's own runtime.
	exitCode, signaled := entry.proc.Reap()
	if signaled || exitCode != 0 {
		e.log.WithField("pid", entry.proc.PID).
			WithField("exit_code", exitCode).
			WithField("output_tail", string(entry.proc.Diagnostics())).
			Warn("cgi child exited abnormally")
	}
	entry.proc.Close()
	e.admission.Release()
	e.metrics.DecCGI()

	connEntry, ok := e.conns[entry.connFd]
	if !ok {
		return
	}
	connEntry.awaitingCGI = false
	connEntry.conn.CGI = nil
	// dispatchCGI took the client fd out of the poller; register it again
	// before finishResponse arms write interest on it.
	if err := e.poller.Add(entry.connFd, false); err != nil {
		e.purgeConn(entry.connFd)
		return
	}

	switch {
	case signaled:
		e.respondCGIStatus(entry.connFd, connEntry, 504)
	case exitCode == 127 && len(entry.proc.Output) == 0:
		e.respondCGIStatus(entry.connFd, connEntry, 500)
	default:
		out := cgi.ParseOutput(entry.proc.Output)
		headers := make(map[string]string, len(out.Headers)+2)
		for k, v := range out.Headers {
			headers[k] = v
		}
		body := out.Body
		if !hasHeaderFold(headers, "Content-Length") {
			headers["Content-Length"] = strconv.Itoa(len(body))
		}
		if connEntry.conn.Head != nil && connEntry.conn.Head.Method == "HEAD" {
			body = nil
		}
		// A CGI response always closes the connection after the flush,
		// regardless of the script's status or the request's own
		// keep-alive wish.
		connEntry.conn.KeepAlive = false
		e.finishResponse(entry.connFd, connEntry, out.Status, headers, body)
	}
}

// respondCGIStatus finalizes the connection's response with a configured
// error page for the given status, used for the CGI-specific 504/500
// outcomes derived from wait() results rather than from the handler error
// path.
func (e *Engine) respondCGIStatus(fd int, connEntry *connEntry, status int) {
	headers := errorpage.Headers()
	resp := errorpage.Resolve(e.fs, connEntry.endpoint.VHosts[0], status)
	headers["Content-Type"] = resp.ContentType
	e.finishResponse(fd, connEntry, resp.Status, headers, resp.Body)
}

func (e *Engine) failCGI(entry *cgiEntry, status int) {
	entry.proc.Kill()
	e.poller.Remove(entry.proc.StdoutFD())
	delete(e.cgiStdout, entry.proc.StdoutFD())
	if sfd := entry.proc.StdinFD(); sfd >= 0 {
		e.poller.Remove(sfd)
		delete(e.cgiStdin, sfd)
	}
	entry.proc.Reap()
	entry.proc.Close()
	e.admission.Release()
	e.metrics.DecCGI()

	connEntry, ok := e.conns[entry.connFd]
	if !ok {
		return
	}
	connEntry.awaitingCGI = false
	connEntry.conn.CGI = nil
	// Same re-registration as completeCGI, before the response arms write
	// interest.
	if err := e.poller.Add(entry.connFd, false); err != nil {
		e.purgeConn(entry.connFd)
		return
	}
	e.respondCGIStatus(entry.connFd, connEntry, status)
}

// periodic performs the throttled housekeeping the loop runs once per
// iteration: killing and reaping CGI children past their timeout (once a
// second), sweeping idle sessions (once a minute), and the per-connection
// timeout sweep (every two seconds). All three are cheap no-ops most
// iterations since they bail out before their respective interval has
// elapsed.
func (e *Engine) periodic() {
	now := time.Now()
	if now.Sub(e.lastReap) >= time.Second {
		e.lastReap = now
		e.reapTimedOutCGI(now)
	}
	if now.Sub(e.lastSweep) >= time.Minute {
		e.lastSweep = now
		n := e.sessions.Sweep(now)
		if n > 0 {
			e.log.WithField("count", n).Debug("swept idle sessions")
		}
	}
	if now.Sub(e.lastCleanup) >= 2*time.Second {
		e.lastCleanup = now
		e.cleanupConns(now)
	}
}

// cleanupConns implements the loop's throttled per-connection sweep: idle
// connections past IdleTimeout are closed outright, and connections stuck
// mid-request past HeaderTimeout are answered with 408 and marked to close.
// Connections currently awaiting a CGI child are left alone; CGI's own
// timeout (reapTimedOutCGI) governs those.
func (e *Engine) cleanupConns(now time.Time) {
	for fd, entry := range e.conns {
		if entry.awaitingCGI {
			continue
		}
		conn := entry.conn
		if now.Sub(conn.LastActivity) > e.cfg.IdleTimeout {
			e.purgeConn(fd)
			continue
		}
		if conn.State() == connection.Ready {
			continue
		}
		if conn.HeaderStart.IsZero() {
			continue
		}
		if now.Sub(conn.HeaderStart) > e.cfg.HeaderTimeout {
			e.respondError(fd, entry, 408, true)
		}
	}
}

func (e *Engine) reapTimedOutCGI(now time.Time) {
	for _, entry := range e.cgiStdout {
		if now.Sub(entry.start) > e.cfg.CGITimeout {
			e.failCGI(entry, 504)
		}
	}
}

// shutdownGrace bounds how long shutdown waits for in-flight CGI children
// to exit on their own before they are force-killed.
const shutdownGrace = 2 * time.Second

func (e *Engine) shutdown() {
	// Stop accepting new connections before tearing down existing state.
	for fd := range e.listeners {
		unix.Close(fd)
	}

	deadline := time.Now().Add(shutdownGrace)
	for fd := range e.cgiStdout {
		entry := e.cgiStdout[fd]
		for {
			if ok, _, _ := entry.proc.TryReap(); ok || time.Now().After(deadline) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		entry.proc.Kill()
		entry.proc.Close()
	}

	for fd := range e.conns {
		unix.Close(fd)
	}
	e.sessions.Drain()
	e.poller.Close()
}
