package model

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps raw values: number ≥ 1, size within [1, max] falling back
// to def when unset or invalid.
func NewPage(number, size, def, max int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }
