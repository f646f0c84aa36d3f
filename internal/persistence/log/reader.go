package log

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// HistoryReader iterates the JSONL entries of one history file.
type HistoryReader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

func OpenHistory(path string) (*HistoryReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	// Snapshots of busy cities can run long; give the scanner room.
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &HistoryReader{f: f, dec: dec, sc: sc}, nil
}

// Next decodes the next entry into v. It returns io.EOF when the file
// is exhausted.
func (r *HistoryReader) Next(v any) error {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return json.Unmarshal(line, v)
	}
	if err := r.sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (r *HistoryReader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
