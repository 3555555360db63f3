package traci

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/platoonsim/core/logger"
)

// Config describes how the simulator is started.
type Config struct {
	Binary        string   `json:"binary"`
	GUI           bool     `json:"gui"`
	ExtraArgs     []string `json:"extra_args"`
	Host          string   `json:"host"`
	DialTimeoutMS int      `json:"dial_timeout_ms"`
	MaxRetries    int      `json:"max_retries"`
	BackoffMS     int      `json:"backoff_ms"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.DialTimeoutMS == 0 {
		c.DialTimeoutMS = 10000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 2000
	}
}

// Validate checks the launcher settings.
func (c Config) Validate() error {
	if c.DialTimeoutMS < 0 || c.MaxRetries < 0 || c.BackoffMS < 0 {
		return errors.New("simulation timeouts and retries must not be negative")
	}
	return nil
}

// process is the part of a started simulator the launcher needs.
type process interface {
	Wait() error
	Kill() error
}

type execProcess struct{ cmd *exec.Cmd }

func (p execProcess) Wait() error { return p.cmd.Wait() }
func (p execProcess) Kill() error { return p.cmd.Process.Kill() }

var startProcess = func(ctx context.Context, bin string, args []string, stdout, stderr io.Writer) (process, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

// lineWriter forwards simulator output to the logger one line at a time.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(format string, args ...any)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(w.buf[:i], "\r"); len(line) > 0 {
			w.emit("sumo: %s", line)
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Session is a running simulator with its TraCI connection.
type Session struct {
	*Client
	proc process
	Port int
}

// Close ends the TraCI session and waits for the simulator to exit. The
// process is killed when it does not stop within five seconds.
func (s *Session) Close() error {
	err := s.Client.Close()
	done := make(chan error, 1)
	go func() { done <- s.proc.Wait() }()
	select {
	case werr := <-done:
		var exit *exec.ExitError
		if werr != nil && !errors.As(werr, &exit) && err == nil {
			err = werr
		}
	case <-time.After(5 * time.Second):
		_ = s.proc.Kill()
		<-done
	}
	return err
}

// Launcher starts simulator processes.
type Launcher struct {
	cfg Config
	log logger.Logger
}

// NewLauncher returns a launcher for cfg.
func NewLauncher(cfg Config, log logger.Logger) *Launcher {
	cfg.SetDefaults()
	return &Launcher{cfg: cfg, log: log}
}

// ResolveBinary returns the simulator executable: the configured binary,
// else sumo or sumo-gui from $SUMO_HOME/bin, else from PATH.
func ResolveBinary(cfg Config) (string, error) {
	if cfg.Binary != "" {
		return cfg.Binary, nil
	}
	name := "sumo"
	if cfg.GUI {
		name = "sumo-gui"
	}
	if home := os.Getenv("SUMO_HOME"); home != "" {
		p := filepath.Join(home, "bin", name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in SUMO_HOME/bin or PATH: %w", name, err)
	}
	return p, nil
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Launch starts the simulator on sumocfg and connects to it. A failed start
// is retried MaxRetries times.
func (l *Launcher) Launch(ctx context.Context, sumocfg string) (*Session, error) {
	bin, err := ResolveBinary(l.cfg)
	if err != nil {
		return nil, err
	}
	backoff := time.Duration(l.cfg.BackoffMS) * time.Millisecond
	var errs []error
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		s, err := l.start(ctx, bin, sumocfg)
		if err == nil {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		l.log.Warnf("start simulator for %s (attempt %d/%d): %v", filepath.Base(sumocfg), attempt, l.cfg.MaxRetries, err)
		if attempt == l.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(append(errs, ctx.Err())...)
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("simulator did not start: %w", errors.Join(errs...))
}

func (l *Launcher) start(ctx context.Context, bin, sumocfg string) (*Session, error) {
	port, err := freePort(l.cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("free port: %w", err)
	}
	args := []string{"-c", sumocfg, "--remote-port", strconv.Itoa(port), "--num-clients", "1"}
	args = append(args, l.cfg.ExtraArgs...)
	stdout := &lineWriter{emit: l.log.Debugf}
	stderr := &lineWriter{emit: l.log.Warnf}
	proc, err := startProcess(ctx, bin, args, stdout, stderr)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, time.Duration(l.cfg.DialTimeoutMS)*time.Millisecond)
	defer cancel()
	c, err := Dial(dctx, net.JoinHostPort(l.cfg.Host, strconv.Itoa(port)), l.log)
	if err != nil {
		_ = proc.Kill()
		_ = proc.Wait()
		return nil, err
	}
	if err := c.SetOrder(1); err != nil {
		_ = c.conn.Close()
		_ = proc.Kill()
		_ = proc.Wait()
		return nil, fmt.Errorf("set order: %w", err)
	}
	l.log.Infof("simulator %s listening on port %d", filepath.Base(bin), port)
	return &Session{Client: c, proc: proc, Port: port}, nil
}
