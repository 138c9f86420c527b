// Package tool implements the host-facing tool surface from spec.md §6:
// each tool is a typed request/response pair named in a single string,
// and Dispatch is the tagged-variant switch spec.md §9's design notes
// call for, mirroring the same closed-enum-over-a-string idiom the model
// package uses for Scope and SessionEndReason.
//
// Grounded on internal/recall's Engine-wraps-the-world construction:
// Deps bundles every component the tool surface fronts, the same way
// recall.Engine bundles its sources.
package tool

import (
	"context"
	"encoding/json"

	"mira/internal/builderr"
	"mira/internal/config"
	"mira/internal/embedding"
	"mira/internal/hooks"
	"mira/internal/index"
	"mira/internal/intervene"
	"mira/internal/memory"
	"mira/internal/merr"
	"mira/internal/ponder"
	"mira/internal/recall"
	"mira/internal/search"
	"mira/internal/store"
)

// Deps bundles every backing component the tool surface dispatches into.
type Deps struct {
	DB       *store.Store
	Facts    *memory.Store
	Search   *search.Engine
	Recall   *recall.Engine
	Index    *index.Indexer
	Registry *index.Registry
	Embed    *embedding.Service
	ChunkVec *store.VectorIndex
	FactVec  *store.VectorIndex
	Builds   *builderr.Tracker
	Miner    *ponder.Miner
	Queue    *intervene.Queue
	Hooks    *hooks.Adapters
	Net      NetFetcher
	Cfg      *config.Config

	// ActiveProjectID is the project the most recent set_project call
	// bound, per spec.md §6's "Context bootstrapping" tools. A single
	// in-process Deps serves one host connection at a time (the stdio
	// serve loop spec.md §6 describes), so this is safe un-guarded state,
	// the same assumption internal/embedding.Service's single worker
	// goroutine makes about its queue.
	ActiveProjectID *int64
}

// NetFetcher is the narrow surface Deps needs from internal/netfetch,
// kept as an interface here so tests can stub it without a real HTTP
// round trip.
type NetFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Dispatch routes name to its handler, unmarshaling params into the
// handler's request type and marshaling its response back out. Unknown
// names are a caller mistake (BadRequest), not a server fault.
func Dispatch(ctx context.Context, d *Deps, name string, params json.RawMessage) (json.RawMessage, error) {
	h, ok := handlers[name]
	if !ok {
		return nil, merr.BadRequestf("tool.Dispatch", "unknown tool %q", name)
	}
	return h(ctx, d, params)
}

type handlerFunc func(ctx context.Context, d *Deps, params json.RawMessage) (json.RawMessage, error)

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"session_start": wrap(handleSessionStart),
		"set_project":   wrap(handleSetProject),
		"get_project":   wrap(handleGetProject),

		"remember": wrap(handleRemember),
		"recall":   wrap(handleRecall),
		"forget":   wrap(handleForget),

		"get_symbols":   wrap(handleGetSymbols),
		"search_code":   wrap(handleSearchCode),
		"find_callers":  wrap(handleFindCallers),
		"find_callees":  wrap(handleFindCallees),
		"check_capability": wrap(handleCheckCapability),

		"task": wrap(handleTask),
		"goal": wrap(handleGoal),

		"index": wrap(handleIndex),

		"session_history":    wrap(handleSessionHistory),
		"summarize_codebase": wrap(handleSummarizeCodebase),
		"get_session_recap":  wrap(handleGetSessionRecap),

		"consult_docs":     wrap(handleConsultPassthrough),
		"consult_web":      wrap(handleConsultPassthrough),
		"configure_expert": wrap(handleConfigureExpert),
		"reply_to_mira":    wrap(handleReplyToMira),
	}
}

// wrap adapts a typed (req -> resp) handler into the untyped
// json.RawMessage form Dispatch's table needs, so individual handler
// files never deal with marshaling.
func wrap[Req any, Resp any](fn func(ctx context.Context, d *Deps, req Req) (Resp, error)) handlerFunc {
	return func(ctx context.Context, d *Deps, params json.RawMessage) (json.RawMessage, error) {
		var req Req
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, merr.BadRequestf("tool.Dispatch", "decode request: %v", err)
			}
		}
		resp, err := fn(ctx, d, req)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return nil, merr.Fatalf("tool.Dispatch", err, "encode response")
		}
		return out, nil
	}
}

// requireProject resolves the project id a tool call should operate on:
// an explicit ProjectID field wins, otherwise the active project bound
// by a prior set_project call.
func requireProject(d *Deps, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if d.ActiveProjectID != nil {
		return *d.ActiveProjectID, nil
	}
	return 0, merr.BadRequestf("tool", "no project set; call set_project first or pass project_id")
}


