package models

// Mask marks the pixels on which fusion work is performed.
type Mask struct {
	Shape Shape
	Data  []bool
}

// NewMask allocates an all-false mask.
func NewMask(shape Shape) *Mask {
	return &Mask{
		Shape: shape.Clone(),
		Data:  make([]bool, shape.Len()),
	}
}

// Count returns the number of pixels set in the mask.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	return &Mask{
		Shape: m.Shape.Clone(),
		Data:  append([]bool(nil), m.Data...),
	}
}

// Domain is the set of pixels a fusion run operates on: either the whole grid
// or the pixels selected by a mask. It is built once per run and is read-only
// afterwards.
type Domain struct {
	size    int
	mask    *Mask
	indices []int
}

// FullDomain covers every pixel of a grid with the given shape.
func FullDomain(shape Shape) *Domain {
	n := shape.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return &Domain{size: n, indices: indices}
}

// MaskedDomain covers the pixels set in m.
func MaskedDomain(m *Mask) *Domain {
	indices := make([]int, 0, m.Count())
	for i, v := range m.Data {
		if v {
			indices = append(indices, i)
		}
	}
	return &Domain{size: len(m.Data), mask: m, indices: indices}
}

// NewDomain returns MaskedDomain(m) when a mask is present and FullDomain otherwise.
func NewDomain(shape Shape, m *Mask) *Domain {
	if m == nil {
		return FullDomain(shape)
	}
	return MaskedDomain(m)
}

// Indices returns the flat indices of the active pixels in ascending order.
func (d *Domain) Indices() []int { return d.indices }

// Len returns the number of active pixels.
func (d *Domain) Len() int { return len(d.indices) }

// Size returns the number of pixels in the underlying grid.
func (d *Domain) Size() int { return d.size }

// Masked reports whether the domain is restricted by a mask.
func (d *Domain) Masked() bool { return d.mask != nil }

// Mask returns the restricting mask and whether one is present.
func (d *Domain) Mask() (*Mask, bool) { return d.mask, d.mask != nil }

// Contains reports whether flat index i is part of the domain.
func (d *Domain) Contains(i int) bool {
	if d.mask == nil {
		return i >= 0 && i < d.size
	}
	return d.mask.Data[i]
}

// Chunk is a contiguous run of active pixels. Offset is the position of
// Indices[0] within Domain.Indices, which lets workers address per-pixel
// buffers that only cover the domain.
type Chunk struct {
	Offset  int
	Indices []int
}

// Chunks splits the active indices into at most n contiguous, non-overlapping
// chunks for parallel processing. Every returned chunk is non-empty.
func (d *Domain) Chunks(n int) []Chunk {
	total := len(d.indices)
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	if n == 0 {
		return nil
	}
	per := (total + n - 1) / n
	chunks := make([]Chunk, 0, n)
	for start := 0; start < total; start += per {
		end := min(start+per, total)
		chunks = append(chunks, Chunk{Offset: start, Indices: d.indices[start:end]})
	}
	return chunks
}
