package index

// TermEntry is one token and the sorted paths of the files containing it.
type TermEntry struct {
	Term  string   `json:"term"`
	Files []string `json:"files"`

	set *FileSet
}

// Stats summarises the size of an index.
type Stats struct {
	Terms       int64 `json:"terms"`
	Files       int64 `json:"files"`
	Occurrences int64 `json:"occurrences"`
}
