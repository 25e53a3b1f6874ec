// Command spectra-dev builds the browser bundle and runs the dev API next to
// the static web server, stopping everything on the first failure or signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type procConfig struct {
	Name string
	Args []string
	Dir  string
	Env  []string
	// Once marks a build step that must exit cleanly before services start.
	Once bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	procs := []procConfig{
		{
			Name: "wasm-exec",
			Args: []string{"sh", "-c", `cp "$(go env GOROOT)/lib/wasm/wasm_exec.js" web/`},
			Once: true,
		},
		{
			Name: "build-web-wasm",
			Args: []string{"go", "build", "-o", "web/main.wasm", "./cmd/spectra-wasm"},
			Env:  []string{"GOOS=js", "GOARCH=wasm"},
			Once: true,
		},
		{
			Name: "devapi",
			Args: []string{"go", "run", "./cmd/spectra-devapi", "-listen", "127.0.0.1:8000"},
		},
		{
			Name: "web",
			Args: []string{
				"go", "run", "./cmd/spectra-web",
				"-listen", "127.0.0.1:4173",
				"-api", "http://127.0.0.1:8000",
				"-dir", "web",
			},
		},
	}

	if err := run(ctx, procs); err != nil {
		fmt.Fprintf(os.Stderr, "spectra-dev exited with error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the Once steps in order, then supervises the rest.
func run(ctx context.Context, procs []procConfig) error {
	var services []procConfig
	for _, cfg := range procs {
		if !cfg.Once {
			services = append(services, cfg)
			continue
		}
		if err := command(ctx, cfg).Run(); err != nil {
			return fmt.Errorf("%s: %w", cfg.Name, err)
		}
	}
	if len(services) == 0 {
		return nil
	}
	return runAll(ctx, services)
}

func command(ctx context.Context, cfg procConfig) *exec.Cmd {
	cmd := exec.CommandContext(ctx, cfg.Args[0], cfg.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(append([]string{}, os.Environ()...), cfg.Env...)
	}
	return cmd
}

// runAll starts every service and returns when all exit, one fails, or ctx
// is cancelled.
func runAll(ctx context.Context, procs []procConfig) error {
	if len(procs) == 0 {
		return fmt.Errorf("no processes configured")
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(procs))

	for _, cfg := range procs {
		wg.Add(1)
		go func(cfg procConfig) {
			defer wg.Done()
			cmd := command(ctx, cfg)
			if err := cmd.Start(); err != nil {
				errCh <- fmt.Errorf("%s start: %w", cfg.Name, err)
				return
			}
			if err := cmd.Wait(); err != nil {
				// If the context was cancelled, treat the exit as expected.
				select {
				case <-ctx.Done():
					return
				default:
				}
				errCh <- fmt.Errorf("%s exited: %w", cfg.Name, err)
			}
		}(cfg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		shutdownDelay := time.After(2 * time.Second)
		select {
		case <-done:
		case <-shutdownDelay:
		}
	case err := <-errCh:
		return err
	case <-done:
	}
	return nil
}
