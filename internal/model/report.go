package model

// Report is the outcome of `treedeco check` over a set of files.
type Report struct {
	Root  string
	Files []FileReport
}

// FileReport holds the decorations produced for one file. Error is set
// when the pass failed, in which case Styles is empty.
type FileReport struct {
	Path     string
	Language string
	Styles   []StyleReport
	Error    string
}

// Decorations returns the number of decoration instances in the file.
func (f *FileReport) Decorations() int {
	n := 0
	for i := range f.Styles {
		n += len(f.Styles[i].Decorations)
	}
	return n
}

// StyleReport is one live style group.
type StyleReport struct {
	ID          string
	Key         string // canonical serialization of the group style
	Decorations []DecorationReport
}

// DecorationReport is one instance of a style group.
type DecorationReport struct {
	Range Range
	Hover string
	// Text is the inline before/after text, if any.
	Text string
}
