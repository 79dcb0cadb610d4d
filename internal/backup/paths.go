package backup

// Default file name suffixes.
const (
	DefaultLogSuffix   = ".gz"
	DefaultIndexSuffix = ".index"
	oldSuffix          = ".old"
)

// Paths are the files belonging to one backup.
type Paths struct {
	Name     string
	Log      string
	Index    string
	OldIndex string
}

// NewPaths derives the backup's file names from name.
func NewPaths(name, logSuffix, indexSuffix string) Paths {
	index := name + indexSuffix
	return Paths{
		Name:     name,
		Log:      name + logSuffix,
		Index:    index,
		OldIndex: index + oldSuffix,
	}
}

// indexCompanions are the SQLite files that travel with an index.
var indexCompanions = []string{"", "-wal", "-shm"}
