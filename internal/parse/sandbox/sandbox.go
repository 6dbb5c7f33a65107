// Package sandbox implements parse.Parser for non-Go languages by
// shelling out to a per-language parser command when one is configured,
// falling back to a line-oriented regex symbol extractor otherwise so
// that CODEBASE_FULL/INCR jobs over non-Go codebases stay testable
// without any external tool installed.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/parse"
)

// CommandFor resolves, per language, the external command used to parse
// a file. Nil or empty means "use the regex fallback".
type CommandFor func(language string) []string

// Runner parses non-Go source by invoking an external command per file
// (if configured) and falling back to regex extraction otherwise.
type Runner struct {
	commandFor CommandFor
	timeout    time.Duration
}

// New constructs a Runner. commandFor may be nil, in which case every
// language always uses the regex fallback.
func New(commandFor CommandFor, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{commandFor: commandFor, timeout: timeout}
}

// Parse implements parse.Parser.
func (r *Runner) Parse(ctx context.Context, req parse.Request) (parse.Result, error) {
	result := parse.Result{Files: make([]parse.FileResult, 0, len(req.Files))}

	var cmdArgs []string
	if r.commandFor != nil {
		cmdArgs = r.commandFor(req.Language)
	}

	for _, rel := range req.Files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		abs := filepath.Join(req.RepoPath, rel)
		var fr parse.FileResult
		var err error
		if len(cmdArgs) > 0 {
			fr, err = r.parseWithCommand(ctx, cmdArgs, abs, rel)
		} else {
			fr, err = parseWithRegex(abs, rel, req.Language)
		}
		if err != nil {
			fr = parse.FileResult{Path: rel, Error: err.Error()}
		}
		result.Files = append(result.Files, fr)
	}

	return result, nil
}

func (r *Runner) parseWithCommand(ctx context.Context, cmdArgs []string, absPath, relPath string) (parse.FileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, cmdArgs[1:]...), absPath)
	cmd := exec.CommandContext(ctx, cmdArgs[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return parse.FileResult{}, fmt.Errorf("sandbox parse %s: %w: %s", relPath, err, stderr.String())
	}

	var payload struct {
		Symbols       []parse.Symbol       `json:"symbols"`
		Relationships []parse.Relationship `json:"relationships"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return parse.FileResult{}, fmt.Errorf("sandbox output for %s: %w", relPath, err)
	}

	return parse.FileResult{
		Path:          relPath,
		Symbols:       payload.Symbols,
		Relationships: payload.Relationships,
	}, nil
}

var symbolPatterns = map[string][]*regexp.Regexp{
	"ts": {
		regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z0-9_]+)\s*\(`),
		regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z0-9_]+)`),
	},
	"java": {
		regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?(?:final\s+)?class\s+([A-Za-z0-9_]+)`),
		regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?[A-Za-z0-9_<>\[\]]+\s+([A-Za-z0-9_]+)\s*\([^;]*\)\s*\{`),
	},
	"python": {
		regexp.MustCompile(`^\s*def\s+([A-Za-z0-9_]+)\s*\(`),
		regexp.MustCompile(`^\s*class\s+([A-Za-z0-9_]+)`),
	},
	"rust": {
		regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+([A-Za-z0-9_]+)\s*\(`),
		regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+([A-Za-z0-9_]+)`),
	},
	"cpp": {
		regexp.MustCompile(`^\s*(?:[A-Za-z0-9_:<>\*&]+\s+)+([A-Za-z0-9_]+)\s*\([^;]*\)\s*\{`),
		regexp.MustCompile(`^\s*class\s+([A-Za-z0-9_]+)`),
	},
}

func parseWithRegex(absPath, relPath, language string) (parse.FileResult, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return parse.FileResult{}, fmt.Errorf("read %s: %w", relPath, err)
	}
	defer f.Close()

	patterns := symbolPatterns[language]
	fr := parse.FileResult{Path: relPath}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, pat := range patterns {
			m := pat.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			kind := parse.SymbolFunction
			if matchesClassKeyword(pat) {
				kind = parse.SymbolType
			}
			fr.Symbols = append(fr.Symbols, parse.Symbol{
				Name:      m[1],
				Kind:      kind,
				StartLine: lineNo,
				EndLine:   lineNo,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return parse.FileResult{}, fmt.Errorf("scan %s: %w", relPath, err)
	}

	return fr, nil
}

func matchesClassKeyword(pat *regexp.Regexp) bool {
	src := pat.String()
	return regexp.MustCompile(`class|struct`).MatchString(src)
}
