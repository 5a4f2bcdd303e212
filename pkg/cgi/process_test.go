package cgi

import (
	"runtime"
	"testing"
	"time"
)

func TestSpawnDrainAndReap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Spawn forks a POSIX-style pipe process tree")
	}
	p, err := Spawn("/bin/echo", "", []string{"hello"}, []string{"PATH=/bin:/usr/bin"}, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		eof, retry, err := p.DrainStdout()
		if err != nil {
			t.Fatalf("DrainStdout: %v", err)
		}
		if eof {
			break
		}
		if !retry && time.Now().After(deadline) {
			t.Fatal("timed out waiting for child EOF")
		}
		time.Sleep(time.Millisecond)
	}

	exitCode, signaled := p.Reap()
	if signaled {
		t.Fatal("child should have exited normally")
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}
	if string(p.Output) != "hello\n" {
		t.Fatalf("output = %q", p.Output)
	}
}

func TestSpawnFeedsStdinBody(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Spawn forks a POSIX-style pipe process tree")
	}
	p, err := Spawn("/bin/cat", "", nil, []string{"PATH=/bin:/usr/bin"}, []byte("roundtrip"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	for {
		done, retry, err := p.FeedStdin()
		if err != nil {
			t.Fatalf("FeedStdin: %v", err)
		}
		if done {
			break
		}
		if !retry {
			continue
		}
		time.Sleep(time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		eof, _, err := p.DrainStdout()
		if err != nil {
			t.Fatalf("DrainStdout: %v", err)
		}
		if eof {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for cat to echo back")
		}
		time.Sleep(time.Millisecond)
	}

	exitCode, signaled := p.Reap()
	if signaled {
		t.Fatal("cat should exit normally once stdin closes")
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}
	if string(p.Output) != "roundtrip" {
		t.Fatalf("output = %q", p.Output)
	}
}

func TestKillIsIdempotent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Spawn forks a POSIX-style pipe process tree")
	}
	p, err := Spawn("/bin/sleep", "", []string{"5"}, []string{"PATH=/bin:/usr/bin"}, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Kill(); err != nil {
		t.Fatalf("first Kill: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("second Kill should be a no-op: %v", err)
	}

	exitCode, signaled := p.Reap()
	if !signaled {
		t.Fatal("killed child should report signaled")
	}
	_ = exitCode
}
