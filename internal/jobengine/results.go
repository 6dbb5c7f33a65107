package jobengine

import "github.com/process-failed-successfully/codegraph-indexer/internal/errors"

// GitSyncResult is the shape written to jc.data["gitSync"].
type GitSyncResult struct {
	ClonePath    string   `json:"clonePath"`
	CommitHash   string   `json:"commitHash"`
	FilesAdded   []string `json:"filesAdded"`
	FilesChanged []string `json:"filesChanged"`
	FilesDeleted []string `json:"filesDeleted"`
}

// ParsedFile is one file's CodeParse output, annotated with its
// language bucket for GraphUpdate's symbol-node writes.
type ParsedFile struct {
	Path          string
	Language      string
	Symbols       []ParsedSymbol
	Relationships []ParsedRelationship
	Error         string
}

// ParsedSymbol mirrors parse.Symbol without importing the parse package
// into downstream consumers that only need the data shape.
type ParsedSymbol struct {
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	Signature string
}

// ParsedRelationship mirrors parse.Relationship.
type ParsedRelationship struct {
	From string
	To   string
	Type string
}

// CodeParseResult is the shape written to jc.data["codeParsing"].
type CodeParseResult struct {
	FilesProcessed   int            `json:"filesProcessed"`
	SymbolsExtracted int            `json:"symbolsExtracted"`
	PerLanguage      map[string]int `json:"perLanguage"`
	Results          []ParsedFile   `json:"results"`
}

// GraphUpdateResult is the shape written to jc.data["graphUpdate"].
type GraphUpdateResult struct {
	NodesCreated          int `json:"nodesCreated"`
	NodesUpdated          int `json:"nodesUpdated"`
	RelationshipsCreated  int `json:"relationshipsCreated"`
	RelationshipsUpdated  int `json:"relationshipsUpdated"`
}

// CleanupResult is the shape written to jc.data["cleanup"].
type CleanupResult struct {
	TempFilesRemoved int   `json:"tempFilesRemoved"`
	BytesFreed       int64 `json:"bytesFreed"`
}

// DocSyncResult is the shape written to jc.data["docSync"].
type DocSyncResult struct {
	FilesFound []string `json:"filesFound"`
}

// DocProcessResult is the shape written to jc.data["docProcess"].
type DocProcessResult struct {
	FilesProcessed int                  `json:"filesProcessed"`
	Sections       map[string]DocStats `json:"sections"`
}

// DocStats is one doc file's lightweight structural summary.
type DocStats struct {
	Headings  int `json:"headings"`
	Words     int `json:"words"`
	CodeFences int `json:"codeFences"`
}

// ApiDiscoverResult is the shape written to jc.data["apiDiscover"].
type ApiDiscoverResult struct {
	CandidateFiles []string `json:"candidateFiles"`
}

// ApiAnalyzeResult is the shape written to jc.data["apiAnalyze"].
type ApiAnalyzeResult struct {
	OpenAPIFiles   int `json:"openApiFiles"`
	ProtoFiles     int `json:"protoFiles"`
	TotalPaths     int `json:"totalPaths"`
	TotalMessages  int `json:"totalMessages"`
}

// FlowDiscoverResult is the shape written to jc.data["flowDiscover"].
type FlowDiscoverResult struct {
	Entrypoints []string `json:"entrypoints"`
}

// FlowAnalyzeResult is the shape written to jc.data["flowAnalyze"].
type FlowAnalyzeResult struct {
	FlowsByFile map[string]int `json:"flowsByFile"`
}

func missingRequirementError(name string) error {
	return errors.New(errors.KindInvalidRequest, "missing required data entry: "+name)
}
