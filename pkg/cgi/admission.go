package cgi

import "golang.org/x/sync/semaphore"

// Admission bounds the number of concurrently-running CGI children: a
// process-wide counter limits concurrent children; over the limit the
// request is refused with 503.
type Admission struct {
	sem *semaphore.Weighted
}

// NewAdmission creates an admission gate allowing up to max concurrent CGI
// children.
func NewAdmission(max int64) *Admission {
	return &Admission{sem: semaphore.NewWeighted(max)}
}

// TryAcquire reports whether a CGI slot was obtained without blocking. The
// caller must call Release exactly once after the child is reaped or
// killed.
func (a *Admission) TryAcquire() bool {
	return a.sem.TryAcquire(1)
}

// Release frees a previously-acquired slot.
func (a *Admission) Release() {
	a.sem.Release(1)
}
