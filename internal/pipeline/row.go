package pipeline

import "sync"

// Row is one result-set row on its way from the reader to a transform
// worker. The reader fills it and hands it off with Put; from then on the
// worker that takes it owns it and calls Free once the record is built.
// Nobody may retain r or r.V after Free.
type Row struct {
	// Line is the 1-based position of the row in the result set.
	Line int64
	V    []any

	pool *RowPool
}

// RowPool recycles rows of a single width for the lifetime of one run, so
// every reused row already has the right number of cells.
type RowPool struct {
	width int
	p     sync.Pool
}

// NewRowPool returns a pool of rows with len(V) == width.
func NewRowPool(width int) *RowPool {
	rp := &RowPool{width: width}
	rp.p.New = func() any { return &Row{V: make([]any, width), pool: rp} }
	return rp
}

// Get returns a row for result-set position line with every cell nil.
func (rp *RowPool) Get(line int64) *Row {
	r := rp.p.Get().(*Row)
	r.Line = line
	return r
}

// Free clears the cells, so a pooled row does not pin large driver values,
// and hands the row back to its pool.
func (r *Row) Free() {
	clear(r.V)
	r.Line = 0
	if r.pool != nil {
		r.pool.p.Put(r)
	}
}
