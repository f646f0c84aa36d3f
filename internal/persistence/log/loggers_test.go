package log

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

func TestHistoryRoundTrip(t *testing.T) {
	runDir := t.TempDir()

	sim, err := engine.New(engine.Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 3,
		BaseDemand:   0.6,
		Seed:         7,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	l := NewHistoryLogger(runDir)
	const blocks = 25
	for i := 0; i < blocks; i++ {
		sim.Step()
		if err := l.WriteBlock(sim.Snapshot()); err != nil {
			t.Fatalf("write block %d: %v", i, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenHistory(HistoryPath(runDir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var got []engine.BlockSnapshot
	for {
		var snap engine.BlockSnapshot
		err := r.Next(&snap)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, snap)
	}
	if len(got) != blocks {
		t.Fatalf("read %d entries, want %d", len(got), blocks)
	}
	for i, snap := range got {
		if snap.Block != i+1 {
			t.Fatalf("entry %d: block = %d", i, snap.Block)
		}
		if snap.CitySize != 8 || len(snap.Vehicles) != 3 {
			t.Fatalf("entry %d: city %d vehicles %d", i, snap.CitySize, len(snap.Vehicles))
		}
	}
}

func TestWriteResults(t *testing.T) {
	runDir := t.TempDir()

	sim, err := engine.New(engine.Config{
		CitySize:     8,
		WrapCity:     true,
		VehicleCount: 2,
		BaseDemand:   0.3,
		TimeBlocks:   40,
		Seed:         3,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	res, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := WriteResults(runDir, res); err != nil {
		t.Fatalf("write results: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(runDir, "results.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("empty results file")
	}
}
