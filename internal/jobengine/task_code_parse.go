package jobengine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/fsutil"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse"
	"github.com/process-failed-successfully/codegraph-indexer/internal/telemetry"
)

// languageExtensions maps a file extension to the language bucket
// CodeParse groups files into (spec.md §4.4.2).
var languageExtensions = map[string]string{
	".go":  "go",
	".ts":  "ts",
	".tsx": "ts",
	".js":  "ts",
	".jsx": "ts",
	".java": "java",
	".py":   "python",
	".rs":   "rust",
	".c":    "cpp",
	".h":    "cpp",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
}

// CodeParseTask implements spec.md §4.4.2.
type CodeParseTask struct {
	baseTask
	Parsers map[string]parse.Parser
}

// NewCodeParseTask constructs the CodeParse task with one Parser per
// enabled language bucket.
func NewCodeParseTask(parsers map[string]parse.Parser) *CodeParseTask {
	return &CodeParseTask{
		baseTask: baseTask{requires: []string{"gitSync"}},
		Parsers:  parsers,
	}
}

func (t *CodeParseTask) Name() string { return "codeParsing" }

func (t *CodeParseTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	gitSync, ok := jc.GetData("gitSync")
	if !ok {
		return nil, missingRequirementError("gitSync")
	}
	sync := gitSync.(GitSyncResult)

	var input []string
	if jc.Job.Kind == model.KindCodebaseIncr {
		input = append(input, sync.FilesAdded...)
		input = append(input, sync.FilesChanged...)
	} else {
		input = append(input, sync.FilesAdded...)
	}

	byLanguage := bucketByLanguage(input)

	result := CodeParseResult{
		PerLanguage: make(map[string]int),
		Results:     make([]ParsedFile, 0, len(input)),
	}

	for lang, files := range byLanguage {
		langCfg, enabled := jc.Config.Parser.Languages[lang]
		if !enabled || !langCfg.Enabled {
			continue
		}
		parser, ok := t.Parsers[lang]
		if !ok {
			continue
		}

		filtered := filterByLangConfig(files, langCfg)
		pr, err := parser.Parse(ctx, parse.Request{
			Language: lang,
			RepoPath: sync.ClonePath,
			Files:    filtered,
		})
		if err != nil {
			return nil, wrapExecError(ctx, errors.KindParseError, "parse "+lang+" files", err)
		}

		for _, fr := range pr.Files {
			if fr.Error != "" {
				return nil, errors.New(errors.KindParseError, lang+" file "+fr.Path+": "+fr.Error)
			}
			result.Results = append(result.Results, toParsedFile(fr, lang))
			result.FilesProcessed++
			result.SymbolsExtracted += len(fr.Symbols)
			telemetry.RecordFileProcessed(lang)
		}
		result.PerLanguage[lang] = len(filtered)
	}

	return result, nil
}

func bucketByLanguage(paths []string) map[string][]string {
	buckets := make(map[string][]string)
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		lang, ok := languageExtensions[ext]
		if !ok {
			continue
		}
		buckets[lang] = append(buckets[lang], p)
	}
	return buckets
}

// filterByLangConfig drops binary-extension paths always, and test files
// unless the language bucket's IncludeTests is set.
func filterByLangConfig(files []string, cfg config.LanguageConfig) []string {
	filtered := make([]string, 0, len(files))
	for _, f := range files {
		if fsutil.IsBinaryExt(filepath.Ext(f)) {
			continue
		}
		if !cfg.IncludeTests && looksLikeTestFile(f) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

func looksLikeTestFile(path string) bool {
	base := filepath.Base(path)
	return strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") || strings.Contains(base, ".test.")
}

func toParsedFile(fr parse.FileResult, lang string) ParsedFile {
	pf := ParsedFile{Path: fr.Path, Language: lang, Error: fr.Error}
	for _, s := range fr.Symbols {
		pf.Symbols = append(pf.Symbols, ParsedSymbol{
			Name:      s.Name,
			Kind:      string(s.Kind),
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
			Signature: s.Signature,
		})
	}
	for _, r := range fr.Relationships {
		pf.Relationships = append(pf.Relationships, ParsedRelationship{
			From: r.From,
			To:   r.To,
			Type: string(r.Type),
		})
	}
	return pf
}
