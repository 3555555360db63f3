package traci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/platoonsim/infra/logger"
)

type fakeProcess struct {
	once sync.Once
	done chan struct{}
	ln   net.Listener
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProcess) Kill() error {
	p.stop()
	return nil
}

func (p *fakeProcess) stop() {
	p.once.Do(func() {
		_ = p.ln.Close()
		close(p.done)
	})
}

// fakeSimulator listens on the --remote-port argument and serves TraCI
// until the client closes the session.
func fakeSimulator(t *testing.T, args []string) (process, error) {
	port := ""
	for i, a := range args {
		if a == "--remote-port" {
			port = args[i+1]
		}
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port))
	if err != nil {
		return nil, err
	}
	p := &fakeProcess{done: make(chan struct{}), ln: ln}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		seen := serve(t, conn, func(req request) reply { return ok() })
		for range seen {
		}
		p.stop()
	}()
	return p, nil
}

func TestLauncherRetriesStart(t *testing.T) {
	orig := startProcess
	defer func() { startProcess = orig }()

	var (
		mu    sync.Mutex
		calls int
		args  []string
	)
	startProcess = func(_ context.Context, bin string, a []string, _, _ io.Writer) (process, error) {
		mu.Lock()
		calls++
		n := calls
		args = a
		mu.Unlock()
		assert.Equal(t, "/opt/sumo/bin/sumo", bin)
		if n == 1 {
			return nil, errors.New("exec format error")
		}
		return fakeSimulator(t, a)
	}

	l := NewLauncher(Config{Binary: "/opt/sumo/bin/sumo", ExtraArgs: []string{"--step-length", "1"}, BackoffMS: 1}, logger.NopLogger{})
	s, err := l.Launch(context.Background(), "scenario.sumocfg")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"-c", "scenario.sumocfg", "--remote-port", strconv.Itoa(s.Port), "--num-clients", "1", "--step-length", "1"}, args)
	require.NoError(t, s.Close())
}

func TestLineWriterSplitsOutput(t *testing.T) {
	var lines []string
	w := &lineWriter{emit: func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}}
	_, err := w.Write([]byte("Loading net-file from 'osm.net.xml' ... done (12ms).\r\nWarning: No"))
	require.NoError(t, err)
	_, err = w.Write([]byte(" lanes\n\nStep #1.00\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sumo: Loading net-file from 'osm.net.xml' ... done (12ms).",
		"sumo: Warning: No lanes",
		"sumo: Step #1.00",
	}, lines)
}

func TestLauncherForwardsSimulatorOutput(t *testing.T) {
	orig := startProcess
	defer func() { startProcess = orig }()
	startProcess = func(_ context.Context, _ string, _ []string, stdout, stderr io.Writer) (process, error) {
		_, _ = io.WriteString(stdout, "Loading done.\n")
		_, _ = io.WriteString(stderr, "Warning: teleporting\n")
		return nil, errors.New("exit status 1")
	}

	var warnings []string
	log := &captureLogger{warn: func(msg string) { warnings = append(warnings, msg) }}
	l := NewLauncher(Config{Binary: "sumo", MaxRetries: 1, BackoffMS: 1}, log)
	_, err := l.Launch(context.Background(), "x.sumocfg")
	require.Error(t, err)
	assert.Contains(t, warnings, "sumo: Warning: teleporting")
	assert.Contains(t, log.debug, "sumo: Loading done.")
}

type captureLogger struct {
	logger.NopLogger
	debug []string
	warn  func(string)
}

func (c *captureLogger) Debugf(format string, args ...any) {
	c.debug = append(c.debug, fmt.Sprintf(format, args...))
}

func (c *captureLogger) Warnf(format string, args ...any) { c.warn(fmt.Sprintf(format, args...)) }

func TestLauncherGivesUp(t *testing.T) {
	orig := startProcess
	defer func() { startProcess = orig }()
	calls := 0
	startProcess = func(context.Context, string, []string, io.Writer, io.Writer) (process, error) {
		calls++
		return nil, errors.New("boom")
	}

	l := NewLauncher(Config{Binary: "sumo", MaxRetries: 2, BackoffMS: 1}, logger.NopLogger{})
	_, err := l.Launch(context.Background(), "x.sumocfg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 2")
	assert.Equal(t, 2, calls)
}

func TestResolveBinary(t *testing.T) {
	bin, err := ResolveBinary(Config{Binary: "/usr/local/bin/sumo"})
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/sumo", bin)

	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	gui := filepath.Join(home, "bin", "sumo-gui")
	require.NoError(t, os.WriteFile(gui, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("SUMO_HOME", home)
	t.Setenv("PATH", "")

	bin, err = ResolveBinary(Config{GUI: true})
	require.NoError(t, err)
	assert.Equal(t, gui, bin)

	_, err = ResolveBinary(Config{})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 2000, c.BackoffMS)
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{MaxRetries: -1}.Validate())
}
