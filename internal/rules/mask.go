package rules

// Mask holds one boolean per ledger row.
type Mask []bool

// NewMask returns an all-false mask of length n.
func NewMask(n int) Mask {
	return make(Mask, n)
}

// And returns the row-wise intersection of m and o.
func (m Mask) And(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && i < len(o) && o[i]
	}
	return out
}

// Or returns the row-wise union of m and o.
func (m Mask) Or(o Mask) Mask {
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || (i < len(o) && o[i])
	}
	return out
}

// Not returns the row-wise negation of m.
func (m Mask) Not() Mask {
	out := make(Mask, len(m))
	for i, v := range m {
		out[i] = !v
	}
	return out
}

// Indices returns the positions of true rows in ascending order.
func (m Mask) Indices() []int {
	out := make([]int, 0)
	for i, v := range m {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// Count returns the number of true rows.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}
