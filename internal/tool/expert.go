package tool

import (
	"context"
	"database/sql"

	"mira/internal/merr"
	"mira/internal/store"
)

// ConsultReq is the passthrough shape for consult_docs/consult_web: both
// are out-of-core expert sub-agent calls per spec.md §6, so the core
// only fetches the given URL through whatever SSRF-guarded fetcher is
// configured and returns the body, rather than running an LLM turn
// itself (no LLM provider SDKs ship in core, per the Non-goals). Query
// is accepted but not used by the core.
type ConsultReq struct {
	Query string `json:"query"`
	URL   string `json:"url,omitempty"`
}

type ConsultResp struct {
	Body string `json:"body,omitempty"`
}

func handleConsultPassthrough(ctx context.Context, d *Deps, req ConsultReq) (ConsultResp, error) {
	if req.URL == "" {
		return ConsultResp{}, merr.Externalf("tool.consult", nil, "no url given and no expert adapter configured; consult_* is a passthrough in core")
	}
	if d.Net == nil {
		return ConsultResp{}, merr.Externalf("tool.consult", nil, "net fetch not configured")
	}
	body, err := d.Net.Get(ctx, req.URL)
	if err != nil {
		return ConsultResp{}, err
	}
	return ConsultResp{Body: string(body)}, nil
}

// ConfigureExpertReq records which external expert the host wants wired
// up for future consult_* calls. The core itself never talks to the
// expert; it only persists the configuration as operational state, the
// same way internal/hooks persists precompact context in server_state.
type ConfigureExpertReq struct {
	Name   string `json:"name"`
	Config string `json:"config"` // opaque JSON the host interprets
}

type ConfigureExpertResp struct {
	OK bool `json:"ok"`
}

func handleConfigureExpert(ctx context.Context, d *Deps, req ConfigureExpertReq) (ConfigureExpertResp, error) {
	if req.Name == "" {
		return ConfigureExpertResp{}, merr.BadRequestf("tool.configure_expert", "name is required")
	}
	key := "expert_config:" + req.Name
	_, err := store.Interact(ctx, d.DB, "tool.configure_expert", func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO server_state(key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, req.Config)
		return struct{}{}, err
	})
	if err != nil {
		return ConfigureExpertResp{}, err
	}
	return ConfigureExpertResp{OK: true}, nil
}

// ReplyToMiraReq is the out-of-band reply channel spec.md §6 names: a
// host-side agent answering a question Mira posed asynchronously
// (e.g. during pondering). Stored as a low-confidence fact so recall
// can surface it like any other signal.
type ReplyToMiraReq struct {
	ProjectID *int64 `json:"project_id,omitempty"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	Content   string `json:"content"`
}

type ReplyToMiraResp struct {
	FactID int64 `json:"fact_id"`
}

func handleReplyToMira(ctx context.Context, d *Deps, req ReplyToMiraReq) (ReplyToMiraResp, error) {
	if req.Content == "" {
		return ReplyToMiraResp{}, merr.BadRequestf("tool.reply_to_mira", "content is required")
	}
	content := req.Content
	if req.InReplyTo != "" {
		content = "(re: " + req.InReplyTo + ") " + content
	}
	resp, err := handleRemember(ctx, d, RememberReq{
		ProjectID:  req.ProjectID,
		Content:    content,
		FactType:   "host_reply",
		Confidence: 0.5,
		Scope:      "project",
	})
	if err != nil {
		return ReplyToMiraResp{}, err
	}
	return ReplyToMiraResp{FactID: resp.FactID}, nil
}
