package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ChunkReader reads a headered CSV stream in fixed-size chunks, yielding
// each record as a header-keyed map. The whole file is never held in memory.
type ChunkReader struct {
	r      *csv.Reader
	header []string
	size   int
}

// NewChunkReader consumes the header record and prepares chunked reads of
// size records each.
func NewChunkReader(src io.Reader, size int) (*ChunkReader, error) {
	r := csv.NewReader(src)
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return &ChunkReader{r: r, header: header, size: size}, nil
}

// Next returns the next chunk of up to size records. It returns io.EOF once
// the stream is exhausted; a final short chunk is returned with a nil error.
func (c *ChunkReader) Next() ([]map[string]string, error) {
	chunk := make([]map[string]string, 0, c.size)
	for len(chunk) < c.size {
		rec, err := c.r.Read()
		if err == io.EOF {
			if len(chunk) == 0 {
				return nil, io.EOF
			}
			return chunk, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		row := make(map[string]string, len(c.header))
		for i, col := range c.header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		chunk = append(chunk, row)
	}
	return chunk, nil
}
