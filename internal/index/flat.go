package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

var (
	fileMagic   = [4]byte{'F', 'I', 'D', 'X'}
	errBadIndex = errors.New("malformed index file")
)

const fileVersion uint32 = 1

type fileHeader struct {
	Magic     [4]byte
	Version   uint32
	Dimension uint32
	Count     uint64
}

// flatIndex is an exhaustive inner-product index over row-major vectors.
type flatIndex struct {
	dim  int
	data []float32
}

type candidate struct {
	position int
	score    float32
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (f *flatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// withVectors returns a new index holding the existing rows plus vecs.
func (f *flatIndex) withVectors(vecs [][]float32) *flatIndex {
	data := make([]float32, len(f.data), len(f.data)+len(vecs)*f.dim)
	copy(data, f.data)
	for _, v := range vecs {
		data = append(data, v...)
	}
	return &flatIndex{dim: f.dim, data: data}
}

func (f *flatIndex) row(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// search returns the n highest inner products, best first. Ties keep insertion order.
func (f *flatIndex) search(q []float32, n int) []candidate {
	total := f.Len()
	scored := make([]candidate, total)
	for i := 0; i < total; i++ {
		scored[i] = candidate{position: i, score: dot(q, f.row(i))}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].score > scored[b].score
	})
	if n < len(scored) {
		scored = scored[:n]
	}
	return scored
}

func (f *flatIndex) writeTo(w io.Writer) error {
	h := fileHeader{
		Magic:     fileMagic,
		Version:   fileVersion,
		Dimension: uint32(f.dim),
		Count:     uint64(f.Len()),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.data); err != nil {
		return fmt.Errorf("write index vectors: %w", err)
	}
	return nil
}

// readFlatIndex decodes an index file of the given size.
func readFlatIndex(r io.Reader, size int64) (*flatIndex, error) {
	var h fileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadIndex, err)
	}
	if h.Magic != fileMagic || h.Version != fileVersion || h.Dimension == 0 {
		return nil, errBadIndex
	}
	payload := size - int64(binary.Size(h))
	if payload < 0 || uint64(payload) != h.Count*uint64(h.Dimension)*4 {
		return nil, fmt.Errorf("%w: expected %d vectors of %d dims", errBadIndex, h.Count, h.Dimension)
	}
	data := make([]float32, h.Count*uint64(h.Dimension))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadIndex, err)
	}
	return &flatIndex{dim: int(h.Dimension), data: data}, nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	copy(out, v)
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}
