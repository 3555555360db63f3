// Package journal persists run lifecycle records as rotating JSON lines.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/platoonsim/core/runner"
)

// Config selects the journal backend and its rotation policy.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SetDefaults applies the jsonl backend with a 10 MB rotation size.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "runs.jsonl"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "none":
		return nil
	default:
		return fmt.Errorf("unknown journal backend %q", c.Backend)
	}
}

// New returns the journal selected by cfg. The "none" backend discards
// records.
func New(cfg Config) (runner.Journal, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == "none" {
		return runner.NopJournal{}, nil
	}
	j, err := NewRotatingJSONL(cfg)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// RotatingJSONL appends records to a JSONL file rotated by lumberjack.
type RotatingJSONL struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONL creates the journal directory and the rotating writer.
func NewRotatingJSONL(cfg Config) (*RotatingJSONL, error) {
	cfg.SetDefaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &RotatingJSONL{logger: lj, path: cfg.Path}, nil
}

// Append writes the record and triggers rotation if needed.
func (j *RotatingJSONL) Append(_ context.Context, rec runner.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.logger.Write(b)
	return err
}

// Query reads the active file and its uncompressed backups and returns the
// matching records ordered by timestamp.
func (j *RotatingJSONL) Query(ctx context.Context, q runner.Query) ([]runner.Record, error) {
	files, err := j.files()
	if err != nil {
		return nil, err
	}
	var res []runner.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(f, q)
		if err != nil {
			return nil, err
		}
		res = append(res, recs...)
	}
	sort.SliceStable(res, func(a, b int) bool { return res[a].Timestamp.Before(res[b].Timestamp) })
	return res, nil
}

// backups are named <name>-<timestamp><ext> next to the active file.
func (j *RotatingJSONL) files() ([]string, error) {
	ext := filepath.Ext(j.path)
	prefix := strings.TrimSuffix(j.path, ext)
	backups, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(backups)
	if _, err := os.Stat(j.path); err == nil {
		backups = append(backups, j.path)
	}
	return backups, nil
}

func readFile(path string, q runner.Query) ([]runner.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []runner.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r runner.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, scanner.Err()
}

// Close closes the underlying writer.
func (j *RotatingJSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logger.Close()
}
