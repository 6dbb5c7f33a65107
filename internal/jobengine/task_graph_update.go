package jobengine

import (
	"context"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/graph"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// upstreamKeyFor maps a job kind to the data key GraphUpdate reads from,
// since each pipeline family (spec.md §4.3's task-order table) feeds
// GraphUpdate a different upstream task's output.
func upstreamKeyFor(kind model.JobKind) string {
	switch kind {
	case model.KindCodebaseFull, model.KindCodebaseIncr:
		return "codeParsing"
	case model.KindDocsFull, model.KindDocsIncr:
		return "docProcess"
	case model.KindAPIAnalysis:
		return "apiAnalyze"
	case model.KindUserflowAnalysis:
		return "flowAnalyze"
	default:
		return "codeParsing"
	}
}

// GraphUpdateTask implements spec.md §4.4.3's code-graph protocol for
// CODEBASE_FULL/INCR, generalized (per SPEC_FULL §4.4.6) to write a
// shallow summary node for the DOCS_*/API_ANALYSIS/USERFLOW_ANALYSIS
// pipelines, whose upstream tasks never produce per-symbol data.
type GraphUpdateTask struct {
	Graph graph.Sink
}

// NewGraphUpdateTask constructs the GraphUpdate task. Its upstream
// requirement depends on the job kind and is checked in Validate, so
// Requires() returns nil and it does not embed baseTask's fixed
// requirement list.
func NewGraphUpdateTask(sink graph.Sink) *GraphUpdateTask {
	return &GraphUpdateTask{Graph: sink}
}

func (t *GraphUpdateTask) Name() string { return "graphUpdate" }

func (t *GraphUpdateTask) Requires() []string { return nil }

func (t *GraphUpdateTask) ShouldRun(jc *JobContext) bool { return true }

func (t *GraphUpdateTask) Validate(jc *JobContext) error {
	return validateRequires(jc, []string{upstreamKeyFor(jc.Job.Kind)})
}

func (t *GraphUpdateTask) Cleanup(jc *JobContext) error { return nil }

func (t *GraphUpdateTask) EstimateDurationMs() int64 { return 0 }

func (t *GraphUpdateTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	cfg := graph.Config{
		URI:      jc.Config.Graph.URI,
		Username: jc.Config.Graph.Username,
		Password: jc.Config.Graph.Password,
	}
	if err := t.Graph.Connect(ctx, cfg); err != nil {
		return nil, errors.Wrap(errors.KindGraphError, "connect to graph", err)
	}

	result := GraphUpdateResult{}
	if err := t.ensureProjectAndCodebase(ctx, jc, &result); err != nil {
		return nil, err
	}

	switch jc.Job.Kind {
	case model.KindCodebaseFull, model.KindCodebaseIncr:
		if err := t.writeCodeParse(ctx, jc, &result); err != nil {
			return nil, err
		}
	case model.KindDocsFull, model.KindDocsIncr:
		if err := t.writeDocs(ctx, jc, &result); err != nil {
			return nil, err
		}
	case model.KindAPIAnalysis:
		if err := t.writeAPISurface(ctx, jc, &result); err != nil {
			return nil, err
		}
	case model.KindUserflowAnalysis:
		if err := t.writeUserFlows(ctx, jc, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// writeCodeParse runs spec.md §4.4.3's File/Symbol protocol in batches
// of config.graph.batchSize, then deletes graph entries for any files
// a CODEBASE_INCR job's GitSync reported removed.
func (t *GraphUpdateTask) writeCodeParse(ctx context.Context, jc *JobContext, result *GraphUpdateResult) error {
	parsedAny, _ := jc.GetData("codeParsing")
	parsed := parsedAny.(CodeParseResult)

	batchSize := jc.Config.Graph.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(parsed.Results); start += batchSize {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.KindCancelled, "graph update cancelled", ctx.Err())
		default:
		}
		end := start + batchSize
		if end > len(parsed.Results) {
			end = len(parsed.Results)
		}
		if err := t.writeBatch(ctx, jc, parsed.Results[start:end], result); err != nil {
			return err
		}
	}

	if jc.Job.Kind == model.KindCodebaseIncr {
		gitSyncAny, _ := jc.GetData("gitSync")
		if sync, ok := gitSyncAny.(GitSyncResult); ok {
			for _, path := range sync.FilesDeleted {
				if _, err := t.Graph.DeleteFile(ctx, *jc.Job.CodebaseID, path); err != nil {
					return errors.Wrap(errors.KindGraphError, "delete file "+path, err)
				}
			}
		}
	}
	return nil
}

// writeDocs upserts one Document node per summarized doc file, linked
// to the project.
func (t *GraphUpdateTask) writeDocs(ctx context.Context, jc *JobContext, result *GraphUpdateResult) error {
	docAny, _ := jc.GetData("docProcess")
	doc := docAny.(DocProcessResult)

	for path, stats := range doc.Sections {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.KindCancelled, "graph update cancelled", ctx.Err())
		default:
		}
		outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
			Label: "Document",
			Keys:  map[string]any{"path": path, "projectId": jc.Project.ID},
			Properties: map[string]any{
				"headings":   stats.Headings,
				"words":      stats.Words,
				"codeFences": stats.CodeFences,
			},
		})
		if err != nil {
			return errors.Wrap(errors.KindGraphError, "upsert document node "+path, err)
		}
		tallyNode(result, outcome)

		outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
			FromLabel: "Project",
			FromKeys:  map[string]any{"id": jc.Project.ID},
			ToLabel:   "Document",
			ToKeys:    map[string]any{"path": path, "projectId": jc.Project.ID},
			Type:      "HAS_DOC",
		})
		if err != nil {
			return errors.Wrap(errors.KindGraphError, "upsert project-document edge "+path, err)
		}
		tallyEdge(result, outcome)
	}
	return nil
}

// writeAPISurface upserts a single summary node carrying ApiAnalyze's
// counts, linked to the project.
func (t *GraphUpdateTask) writeAPISurface(ctx context.Context, jc *JobContext, result *GraphUpdateResult) error {
	analyzeAny, _ := jc.GetData("apiAnalyze")
	analyze := analyzeAny.(ApiAnalyzeResult)

	outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
		Label: "ApiSurface",
		Keys:  map[string]any{"projectId": jc.Project.ID},
		Properties: map[string]any{
			"openApiFiles":  analyze.OpenAPIFiles,
			"protoFiles":    analyze.ProtoFiles,
			"totalPaths":    analyze.TotalPaths,
			"totalMessages": analyze.TotalMessages,
		},
	})
	if err != nil {
		return errors.Wrap(errors.KindGraphError, "upsert api surface node", err)
	}
	tallyNode(result, outcome)

	outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
		FromLabel: "Project",
		FromKeys:  map[string]any{"id": jc.Project.ID},
		ToLabel:   "ApiSurface",
		ToKeys:    map[string]any{"projectId": jc.Project.ID},
		Type:      "HAS_API_SURFACE",
	})
	if err != nil {
		return errors.Wrap(errors.KindGraphError, "upsert project-api-surface edge", err)
	}
	tallyEdge(result, outcome)
	return nil
}

// writeUserFlows upserts one UserFlow node per file FlowAnalyze grouped
// entrypoints under, linked to the project.
func (t *GraphUpdateTask) writeUserFlows(ctx context.Context, jc *JobContext, result *GraphUpdateResult) error {
	analyzeAny, _ := jc.GetData("flowAnalyze")
	analyze := analyzeAny.(FlowAnalyzeResult)

	for file, count := range analyze.FlowsByFile {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.KindCancelled, "graph update cancelled", ctx.Err())
		default:
		}
		outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
			Label: "UserFlow",
			Keys:  map[string]any{"file": file, "projectId": jc.Project.ID},
			Properties: map[string]any{"entrypointCount": count},
		})
		if err != nil {
			return errors.Wrap(errors.KindGraphError, "upsert user flow node "+file, err)
		}
		tallyNode(result, outcome)

		outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
			FromLabel: "Project",
			FromKeys:  map[string]any{"id": jc.Project.ID},
			ToLabel:   "UserFlow",
			ToKeys:    map[string]any{"file": file, "projectId": jc.Project.ID},
			Type:      "HAS_FLOW",
		})
		if err != nil {
			return errors.Wrap(errors.KindGraphError, "upsert project-user-flow edge "+file, err)
		}
		tallyEdge(result, outcome)
	}
	return nil
}

func (t *GraphUpdateTask) ensureProjectAndCodebase(ctx context.Context, jc *JobContext, result *GraphUpdateResult) error {
	outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
		Label:      "Project",
		Keys:       map[string]any{"id": jc.Project.ID},
		Properties: map[string]any{"name": jc.Project.Name, "updatedAt": jc.Project.UpdatedAt.Unix()},
	})
	if err != nil {
		return errors.Wrap(errors.KindGraphError, "upsert project node", err)
	}
	tallyNode(result, outcome)

	if jc.Codebase == nil {
		return nil
	}

	outcome, err = t.Graph.UpsertNode(ctx, graph.NodeUpsert{
		Label:      "Codebase",
		Keys:       map[string]any{"id": jc.Codebase.ID},
		Properties: map[string]any{"name": jc.Codebase.Name, "updatedAt": jc.Codebase.UpdatedAt.Unix()},
	})
	if err != nil {
		return errors.Wrap(errors.KindGraphError, "upsert codebase node", err)
	}
	tallyNode(result, outcome)

	outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
		FromLabel: "Project",
		FromKeys:  map[string]any{"id": jc.Project.ID},
		ToLabel:   "Codebase",
		ToKeys:    map[string]any{"id": jc.Codebase.ID},
		Type:      "CONTAINS",
	})
	if err != nil {
		return errors.Wrap(errors.KindGraphError, "upsert project-codebase edge", err)
	}
	tallyEdge(result, outcome)
	return nil
}

func (t *GraphUpdateTask) writeBatch(ctx context.Context, jc *JobContext, files []ParsedFile, result *GraphUpdateResult) error {
	codebaseID := ""
	if jc.Codebase != nil {
		codebaseID = jc.Codebase.ID
	}

	for _, file := range files {
		outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
			Label:      "File",
			Keys:       map[string]any{"path": file.Path, "codebaseId": codebaseID},
			Properties: map[string]any{"language": file.Language},
		})
		if err != nil {
			return errors.Wrap(errors.KindGraphError, "upsert file node "+file.Path, err)
		}
		tallyNode(result, outcome)

		if jc.Codebase != nil {
			outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
				FromLabel: "Codebase",
				FromKeys:  map[string]any{"id": codebaseID},
				ToLabel:   "File",
				ToKeys:    map[string]any{"path": file.Path, "codebaseId": codebaseID},
				Type:      "CONTAINS",
			})
			if err != nil {
				return errors.Wrap(errors.KindGraphError, "upsert codebase-file edge "+file.Path, err)
			}
			tallyEdge(result, outcome)
		}

		for _, sym := range file.Symbols {
			outcome, err := t.Graph.UpsertNode(ctx, graph.NodeUpsert{
				Label: "Symbol",
				Keys:  map[string]any{"name": sym.Name, "file": file.Path, "kind": sym.Kind},
				Properties: map[string]any{
					"startLine": sym.StartLine,
					"endLine":   sym.EndLine,
					"signature": sym.Signature,
				},
			})
			if err != nil {
				return errors.Wrap(errors.KindGraphError, "upsert symbol node "+sym.Name, err)
			}
			tallyNode(result, outcome)

			outcome, err = t.Graph.UpsertEdge(ctx, graph.EdgeUpsert{
				FromLabel: "File",
				FromKeys:  map[string]any{"path": file.Path, "codebaseId": codebaseID},
				ToLabel:   "Symbol",
				ToKeys:    map[string]any{"name": sym.Name, "file": file.Path, "kind": sym.Kind},
				Type:      "DEFINES",
			})
			if err != nil {
				return errors.Wrap(errors.KindGraphError, "upsert file-symbol edge "+sym.Name, err)
			}
			tallyEdge(result, outcome)
		}
	}
	return nil
}

func tallyNode(result *GraphUpdateResult, outcome graph.UpsertResult) {
	if outcome == graph.ResultCreated {
		result.NodesCreated++
	} else {
		result.NodesUpdated++
	}
}

func tallyEdge(result *GraphUpdateResult, outcome graph.UpsertResult) {
	if outcome == graph.ResultCreated {
		result.RelationshipsCreated++
	} else {
		result.RelationshipsUpdated++
	}
}
