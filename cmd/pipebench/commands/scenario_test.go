package commands

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/mempipe/pkg/mempipe"
)

func writeTestYAML(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeTestYAML(t, "scenario.yaml", `pipes: 2
capacity: 128
read_timeout: 250ms
write_timeout: 1500000000
`)
	sc := DefaultScenario()
	if err := loadScenario(path, &sc); err != nil {
		t.Fatalf("load scenario with error: %v", err)
	}
	if sc.Pipes != 2 || sc.Capacity != 128 {
		t.Fatalf("pipes=%d capacity=%d, want 2 and 128", sc.Pipes, sc.Capacity)
	}
	if time.Duration(sc.ReadTimeout) != 250*time.Millisecond {
		t.Fatalf("read_timeout=%v, want 250ms", time.Duration(sc.ReadTimeout))
	}
	if time.Duration(sc.WriteTimeout) != 1500*time.Millisecond {
		t.Fatalf("write_timeout=%v, want 1.5s", time.Duration(sc.WriteTimeout))
	}
	// Fields absent from the file keep their defaults.
	if sc.Chunk != DefaultScenario().Chunk {
		t.Fatalf("chunk=%d, want default %d", sc.Chunk, DefaultScenario().Chunk)
	}
}

func TestLoadScenarioBadDuration(t *testing.T) {
	path := writeTestYAML(t, "bad.yaml", "read_timeout: fast\n")
	sc := DefaultScenario()
	if err := loadScenario(path, &sc); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestScenarioYAMLRoundTrip(t *testing.T) {
	sc := DefaultScenario()
	data, err := yaml.Marshal(sc)
	if err != nil {
		t.Fatalf("marshal with error: %v", err)
	}
	var back Scenario
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal with error: %v", err)
	}
	if back != sc {
		t.Fatalf("round trip changed the scenario: %+v != %+v", back, sc)
	}
}

func TestScenarioValidate(t *testing.T) {
	good := DefaultScenario()
	if err := good.validate(); err != nil {
		t.Fatalf("default scenario invalid: %v", err)
	}

	bad := []Scenario{
		{Pipes: 0, Capacity: 1, Chunk: 1, Bytes: 1},
		{Pipes: 1, Capacity: 0, Chunk: 1, Bytes: 1},
		{Pipes: 1, Capacity: 1, Chunk: 0, Bytes: 1},
		{Pipes: 1, Capacity: 1, Chunk: 1, Bytes: 0},
	}
	for i, sc := range bad {
		if err := sc.validate(); err == nil {
			t.Errorf("scenario %d passed validation", i)
		}
	}
}

func TestFillDeterministic(t *testing.T) {
	a := rand.New(rand.NewPCG(9, 3))
	b := rand.New(rand.NewPCG(9, 3))
	one := make([]byte, 100)
	two := make([]byte, 100)
	fill(a, one[:60])
	fill(a, one[60:])
	fill(b, two[:60])
	fill(b, two[60:])
	if !bytes.Equal(one, two) {
		t.Fatal("identical seeds and chunking produced different streams")
	}
}

func TestRunPipe(t *testing.T) {
	sc := Scenario{
		Pipes:        1,
		Capacity:     64,
		Chunk:        48,
		Bytes:        10000,
		ReadTimeout:  Duration(2 * time.Second),
		WriteTimeout: Duration(2 * time.Second),
		Seed:         7,
	}
	res := runPipe(context.Background(), sc, 0)
	if res.err != nil {
		t.Fatalf("pipe failed: %v", res.err)
	}
	if res.bytes != sc.Bytes {
		t.Fatalf("bytes=%d, want %d", res.bytes, sc.Bytes)
	}
}

// A reader that fails mid-stream tears the pair down so the writer does
// not stall forever on a buffer nobody drains.
func TestReadStreamUnblocksWriter(t *testing.T) {
	sc := Scenario{Pipes: 1, Capacity: 32, Chunk: 16, Bytes: 4096, Seed: 3}

	// Zero timeouts wait forever, so a stranded writer would hang.
	a, b, err := mempipe.Pair(sc.Capacity)
	if err != nil {
		t.Fatalf("Pair with error: %v", err)
	}
	a.SetWriteTimeout(stallBudget(sc.WriteTimeout))
	b.SetReadTimeout(stallBudget(sc.ReadTimeout))

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeStream(a, sc, 0)
	}()

	// Verify against a different seed so the first chunk mismatches.
	bad := sc
	bad.Seed = 4
	if _, err := readStream(b, bad, 0); err == nil {
		t.Fatal("readStream succeeded against a mismatched stream")
	}

	select {
	case err := <-writeErr:
		if err == nil {
			t.Fatal("writeStream succeeded after the pair was torn down")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer still blocked after the reader failed")
	}
}
