package jobengine

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApiAnalyzeTask implements SPEC_FULL §4.4.6's ApiAnalyze: shallow
// path counts for OpenAPI via gopkg.in/yaml.v3 (operations under a path
// are not counted), and message/service counts for .proto via
// line-oriented scanning. No codegen.
type ApiAnalyzeTask struct {
	baseTask
}

// NewApiAnalyzeTask constructs the ApiAnalyze task.
func NewApiAnalyzeTask() *ApiAnalyzeTask {
	return &ApiAnalyzeTask{baseTask: baseTask{requires: []string{"apiDiscover"}}}
}

func (t *ApiAnalyzeTask) Name() string { return "apiAnalyze" }

func (t *ApiAnalyzeTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	discoverAny, ok := jc.GetData("apiDiscover")
	if !ok {
		return nil, missingRequirementError("apiDiscover")
	}
	discover := discoverAny.(ApiDiscoverResult)

	result := ApiAnalyzeResult{}
	for _, rel := range discover.CandidateFiles {
		abs := filepath.Join(jc.CodebaseStoragePath, rel)
		if strings.EqualFold(filepath.Ext(rel), ".proto") {
			msgs, err := countProtoMessages(abs)
			if err != nil {
				continue
			}
			result.ProtoFiles++
			result.TotalMessages += msgs
			continue
		}

		paths, err := countOpenAPIPaths(abs)
		if err != nil {
			continue
		}
		result.OpenAPIFiles++
		result.TotalPaths += paths
	}
	return result, nil
}

func countOpenAPIPaths(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var doc struct {
		Paths map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return 0, err
	}
	return len(doc.Paths), nil
}

func countProtoMessages(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(trimmed, "message ") || strings.HasPrefix(trimmed, "service ") {
			count++
		}
	}
	return count, scanner.Err()
}
