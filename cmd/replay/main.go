package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	persistlog "github.com/tomslee/ridehail-sub001/internal/persistence/log"
	"github.com/tomslee/ridehail-sub001/internal/sim/engine"
)

// replay reads a recorded run and exports its per-block measures as CSV
// for plotting. With -counts it also verifies internal consistency of
// every snapshot.
func main() {
	var (
		runDir    = flag.String("run", "", "run directory containing history.jsonl.zst")
		histPath  = flag.String("history", "", "history file path (overrides -run)")
		outPath   = flag.String("o", "", "output csv path (default stdout)")
		fromBlock = flag.Int("from_block", 0, "first block to export (inclusive)")
		toBlock   = flag.Int("to_block", 0, "last block to export (inclusive, 0 = all)")
		verify    = flag.Bool("counts", false, "verify vehicle/trip counts per snapshot")
	)
	flag.Parse()

	path := *histPath
	if path == "" {
		if *runDir == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -history")
			os.Exit(2)
		}
		path = persistlog.HistoryPath(*runDir)
	}

	r, err := persistlog.OpenHistory(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open history:", err)
		os.Exit(1)
	}
	defer r.Close()

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create output:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	header := []string{
		"block", "vehicle_count", "request_rate", "price",
		"vehicle_fraction_p1", "vehicle_fraction_p2", "vehicle_fraction_p3",
		"mean_wait_time", "mean_ride_time", "wait_fraction", "completed_per_block",
	}
	if err := w.Write(header); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}

	var exported int
	for {
		var snap engine.BlockSnapshot
		err := r.Next(&snap)
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		if snap.Block < *fromBlock {
			continue
		}
		if *toBlock != 0 && snap.Block > *toBlock {
			break
		}
		if *verify {
			if err := verifyCounts(snap); err != nil {
				fmt.Fprintln(os.Stderr, "verify:", err)
				os.Exit(1)
			}
		}
		m := snap.Measures
		row := []string{
			strconv.Itoa(snap.Block),
			strconv.Itoa(snap.VehicleCount),
			formatFloat(snap.RequestRate),
			formatFloat(snap.Price),
			formatFloat(m.VehicleFractionP1),
			formatFloat(m.VehicleFractionP2),
			formatFloat(m.VehicleFractionP3),
			formatFloat(m.MeanWaitTime),
			formatFloat(m.MeanRideTime),
			formatFloat(m.WaitFraction),
			formatFloat(m.CompletedPerBlock),
		}
		if err := w.Write(row); err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
		exported++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintln(os.Stderr, "flush:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "exported %d blocks\n", exported)
}

// verifyCounts cross-checks one snapshot: the vehicle list matches the
// declared count, and every riding trip has exactly one vehicle on it.
func verifyCounts(snap engine.BlockSnapshot) error {
	if len(snap.Vehicles) != snap.VehicleCount {
		return fmt.Errorf("block %d: %d vehicles listed, count says %d",
			snap.Block, len(snap.Vehicles), snap.VehicleCount)
	}
	riding := map[int]int{}
	for _, v := range snap.Vehicles {
		if v.Phase == "P3" {
			riding[v.TripID]++
		}
	}
	for _, t := range snap.Trips {
		if t.Phase != "RIDING" {
			continue
		}
		if riding[t.ID] != 1 {
			return fmt.Errorf("block %d: trip %d riding with %d vehicles",
				snap.Block, t.ID, riding[t.ID])
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
