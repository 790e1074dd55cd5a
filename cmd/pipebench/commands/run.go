package commands

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/mempipe/pkg/mempipe"
)

var (
	flagScenario     string
	flagDumpConfig   bool
	flagPipes        int
	flagCapacity     int
	flagChunk        int
	flagBytes        int64
	flagReadTimeout  time.Duration
	flagWriteTimeout time.Duration
	flagSeed         uint64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bench scenario",
	Long: `Run a bench scenario against in-memory pipe pairs.

Each pipe pair gets a writer goroutine streaming seeded pseudo-random
chunks into one end and a reader verifying the same stream out of the
other. A byte mismatch, a stalled transfer, or a short stream fails the
pipe, and any failed pipe fails the run.

Example:
  pipebench run --pipes 8 --capacity 4096 --bytes $((32<<20))`,
	RunE: runBench,
}

func init() {
	runCmd.Flags().StringVarP(&flagScenario, "file", "f", "", "scenario file (YAML)")
	runCmd.Flags().BoolVar(&flagDumpConfig, "dump-config", false, "print the effective scenario as YAML and exit")
	runCmd.Flags().IntVar(&flagPipes, "pipes", 0, "number of concurrent pipe pairs")
	runCmd.Flags().IntVar(&flagCapacity, "capacity", 0, "buffer capacity per direction in bytes")
	runCmd.Flags().IntVar(&flagChunk, "chunk", 0, "write size per operation in bytes")
	runCmd.Flags().Int64Var(&flagBytes, "bytes", 0, "bytes to stream through each pipe")
	runCmd.Flags().DurationVar(&flagReadTimeout, "read-timeout", 0, "per-read stall budget (0 waits forever)")
	runCmd.Flags().DurationVar(&flagWriteTimeout, "write-timeout", 0, "per-write stall budget (0 waits forever)")
	runCmd.Flags().Uint64Var(&flagSeed, "seed", 0, "base seed for the data streams")
}

// applyFlags overrides scenario fields with any flags set on the command line.
func applyFlags(cmd *cobra.Command, sc *Scenario) {
	f := cmd.Flags()
	if f.Changed("pipes") {
		sc.Pipes = flagPipes
	}
	if f.Changed("capacity") {
		sc.Capacity = flagCapacity
	}
	if f.Changed("chunk") {
		sc.Chunk = flagChunk
	}
	if f.Changed("bytes") {
		sc.Bytes = flagBytes
	}
	if f.Changed("read-timeout") {
		sc.ReadTimeout = Duration(flagReadTimeout)
	}
	if f.Changed("write-timeout") {
		sc.WriteTimeout = Duration(flagWriteTimeout)
	}
	if f.Changed("seed") {
		sc.Seed = flagSeed
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	scenario := DefaultScenario()
	if flagScenario != "" {
		if err := loadScenario(flagScenario, &scenario); err != nil {
			return err
		}
	}
	applyFlags(cmd, &scenario)
	if err := scenario.validate(); err != nil {
		return err
	}

	if flagDumpConfig {
		data, err := yaml.Marshal(scenario)
		if err != nil {
			return fmt.Errorf("failed to format scenario: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Interrupted, aborting")
		cancel()
	}()

	logger.Info("Starting bench",
		"pipes", scenario.Pipes,
		"capacity", scenario.Capacity,
		"chunk", scenario.Chunk,
		"bytes", scenario.Bytes,
		"seed", scenario.Seed)

	results := make([]pipeResult, scenario.Pipes)
	start := time.Now()

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = runPipe(ctx, scenario, i)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Println(renderSummary(scenario, results, elapsed))

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pipes failed", failed, scenario.Pipes)
	}
	logger.Info("Bench complete", "bytes", int64(scenario.Pipes)*scenario.Bytes, "elapsed", elapsed)
	return nil
}

// pipeResult records the outcome of one pipe pair.
type pipeResult struct {
	bytes   int64
	elapsed time.Duration
	err     error
}

// runPipe streams one seeded payload through a dedicated pipe pair and
// verifies it on the far side.
func runPipe(ctx context.Context, scenario Scenario, id int) pipeResult {
	start := time.Now()

	a, b, err := mempipe.Pair(scenario.Capacity)
	if err != nil {
		return pipeResult{err: err}
	}
	a.SetWriteTimeout(stallBudget(scenario.WriteTimeout))
	b.SetReadTimeout(stallBudget(scenario.ReadTimeout))

	// Tear the pair down if the run is aborted so both goroutines
	// unblock promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.CloseWithError(ctx.Err())
			b.CloseWithError(ctx.Err())
		case <-done:
		}
	}()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeStream(a, scenario, id)
	}()

	got, err := readStream(b, scenario, id)
	if werr := <-writeErr; err == nil {
		err = werr
	}

	res := pipeResult{bytes: got, elapsed: time.Since(start), err: err}
	if err != nil {
		slog.Error("Pipe failed", "pipe", id, "error", err)
	} else {
		slog.Debug("Pipe done", "pipe", id, "bytes", got, "elapsed", res.elapsed)
	}
	return res
}

// writeStream pushes the pipe's seeded payload chunk by chunk, then
// closes the write side so the reader sees EOF.
func writeStream(p *mempipe.Pipe, scenario Scenario, id int) error {
	defer p.Close()

	rng := rand.New(rand.NewPCG(scenario.Seed, uint64(id)))
	buf := make([]byte, scenario.Chunk)
	var sent int64
	for sent < scenario.Bytes {
		n := int64(len(buf))
		if left := scenario.Bytes - sent; left < n {
			n = left
		}
		fill(rng, buf[:n])
		if _, err := p.Write(buf[:n]); err != nil {
			p.CloseWithError(err)
			return fmt.Errorf("write at byte %d: %w", sent, err)
		}
		sent += n
	}
	return nil
}

// readStream drains the pipe and verifies it against a second rng
// seeded identically to the writer's. A failure closes the pipe with
// the error so a blocked writer wakes instead of stalling on a buffer
// nobody drains.
func readStream(p *mempipe.Pipe, scenario Scenario, id int) (int64, error) {
	rng := rand.New(rand.NewPCG(scenario.Seed, uint64(id)))
	got := make([]byte, scenario.Chunk)
	want := make([]byte, scenario.Chunk)
	var read int64
	for read < scenario.Bytes {
		n := int64(len(got))
		if left := scenario.Bytes - read; left < n {
			n = left
		}
		if _, err := io.ReadFull(p, got[:n]); err != nil {
			p.CloseWithError(err)
			return read, fmt.Errorf("read at byte %d: %w", read, err)
		}
		fill(rng, want[:n])
		if !bytes.Equal(got[:n], want[:n]) {
			err := fmt.Errorf("stream mismatch in bytes %d..%d", read, read+n)
			p.CloseWithError(err)
			return read, err
		}
		read += n
	}

	// The writer closes its end when done; expect a clean EOF with no
	// trailing data.
	if n, err := p.Read(got[:1]); err != io.EOF {
		err = fmt.Errorf("trailing data after %d bytes: n=%d err=%v", read, n, err)
		p.CloseWithError(err)
		return read, err
	}
	return read, nil
}

// stallBudget maps a scenario timeout to a pipe timeout. Zero and
// negative values run unbounded.
func stallBudget(d Duration) time.Duration {
	if d <= 0 {
		return mempipe.NoTimeout
	}
	return time.Duration(d)
}

// fill writes the next len(p) bytes of the rng stream into p. Writer
// and reader fill in identical chunk sequences, so equal seeds produce
// equal streams.
func fill(rng *rand.Rand, p []byte) {
	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, rng.Uint64())
		p = p[8:]
	}
	if len(p) > 0 {
		var tail [8]byte
		binary.LittleEndian.PutUint64(tail[:], rng.Uint64())
		copy(p, tail[:])
	}
}
