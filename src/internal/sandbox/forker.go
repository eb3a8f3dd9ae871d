package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/VectorBits/econaudit/src/internal/logger"
)

const (
	defaultStartupWait = 10 * time.Second
	stopGrace          = 5 * time.Second
)

var ErrNotRunning = errors.New("fork is not running")

type ForkConfig struct {
	AnvilPath   string
	RPCURL      string
	Chain       string
	Host        string
	Port        int
	BlockNumber uint64
	StartupWait time.Duration
}

// Fork describes a running local fork.
type Fork struct {
	URL         string `json:"url"`
	Chain       string `json:"chain"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	PID         int    `json:"pid"`
}

// Forker owns one anvil process forking a live chain.
type Forker struct {
	cfg ForkConfig

	// ready reports whether the fork accepts connections.
	ready func(ctx context.Context, addr string) error

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	stderr bytes.Buffer
	fork   *Fork
}

func NewForker(cfg ForkConfig) (*Forker, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("no RPC URL for chain: %s", cfg.Chain)
	}
	if cfg.AnvilPath == "" {
		cfg.AnvilPath = "anvil"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8545
	}
	if cfg.StartupWait == 0 {
		cfg.StartupWait = defaultStartupWait
	}
	return &Forker{cfg: cfg, ready: dialReady}, nil
}

func (f *Forker) Args() []string {
	args := []string{
		"--fork-url", f.cfg.RPCURL,
		"--host", f.cfg.Host,
		"--port", strconv.Itoa(f.cfg.Port),
		"--no-rate-limit",
	}
	if f.cfg.BlockNumber > 0 {
		args = append(args, "--fork-block-number", strconv.FormatUint(f.cfg.BlockNumber, 10))
	}
	return args
}

func (f *Forker) addr() string {
	return net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))
}

// Start launches anvil and blocks until it accepts connections, exits, or
// the startup wait elapses.
func (f *Forker) Start(ctx context.Context) (*Fork, error) {
	f.mu.Lock()
	if f.cmd != nil {
		f.mu.Unlock()
		return nil, errors.New("fork already started")
	}

	block := "latest"
	if f.cfg.BlockNumber > 0 {
		block = strconv.FormatUint(f.cfg.BlockNumber, 10)
	}
	logger.Info("🍴 Forking %s at block %s...", f.cfg.Chain, block)

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, f.cfg.AnvilPath, f.Args()...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = stopGrace
	f.stderr.Reset()
	cmd.Stderr = &f.stderr

	if err := cmd.Start(); err != nil {
		f.mu.Unlock()
		cancel()
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("anvil not found (install Foundry: curl -L https://foundry.paradigm.xyz | bash && foundryup): %w", err)
		}
		return nil, fmt.Errorf("failed to start anvil: %w", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	f.cmd, f.cancel, f.done = cmd, cancel, done
	f.mu.Unlock()

	startCtx, stop := context.WithTimeout(ctx, f.cfg.StartupWait)
	defer stop()
	if err := f.waitReady(startCtx, done); err != nil {
		_ = f.Stop()
		return nil, err
	}

	fork := &Fork{
		URL:         "http://" + f.addr(),
		Chain:       f.cfg.Chain,
		BlockNumber: f.cfg.BlockNumber,
		PID:         cmd.Process.Pid,
	}
	f.mu.Lock()
	f.fork = fork
	f.mu.Unlock()
	logger.Info("✅ Fork running at %s (pid %d)", fork.URL, fork.PID)
	return fork, nil
}

func (f *Forker) waitReady(ctx context.Context, done <-chan struct{}) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return fmt.Errorf("anvil exited during startup: %s", bytes.TrimSpace(f.stderr.Bytes()))
		case <-ctx.Done():
			return fmt.Errorf("anvil did not become ready on %s: %w", f.addr(), ctx.Err())
		case <-ticker.C:
			if err := f.ready(ctx, f.addr()); err == nil {
				return nil
			}
		}
	}
}

func dialReady(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (f *Forker) Running() bool {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Info returns the running fork, or nil.
func (f *Forker) Info() *Fork {
	if !f.Running() {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fork
}

// Stop sends SIGTERM and kills the process if it has not exited after the
// grace period.
func (f *Forker) Stop() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}

	cancel()
	<-done

	f.mu.Lock()
	f.cmd, f.cancel, f.done, f.fork = nil, nil, nil, nil
	f.mu.Unlock()
	logger.Info("Fork stopped")
	return nil
}
