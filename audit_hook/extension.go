// Package audithook bridges ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on any
// particular audit system. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/plugin"
	"github.com/xraph/tokenledger/transfer"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin          = (*Extension)(nil)
	_ plugin.OnWalletCreated = (*Extension)(nil)
	_ plugin.OnMint          = (*Extension)(nil)
	_ plugin.OnTransfer      = (*Extension)(nil)
	_ plugin.OnBurn          = (*Extension)(nil)
	_ plugin.OnOwnerChanged  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnWalletCreated implements plugin.OnWalletCreated.
func (e *Extension) OnWalletCreated(ctx context.Context, identity account.Identity) error {
	return e.record(ctx, ActionWalletCreated, SeverityInfo,
		ResourceWallet, identity.String(), CategoryAccount,
		"identity", identity.String(),
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnMint implements plugin.OnMint.
func (e *Extension) OnMint(ctx context.Context, rec *transfer.Record) error {
	return e.record(ctx, ActionTokenMinted, SeverityInfo,
		ResourceTransfer, rec.ID.String(), CategorySettlement,
		"seq", rec.Seq,
		"to", rec.To.String(),
		"amount", rec.Amount.String(),
	)
}

// OnTransfer implements plugin.OnTransfer.
func (e *Extension) OnTransfer(ctx context.Context, rec *transfer.Record) error {
	return e.record(ctx, ActionTokenTransferred, SeverityInfo,
		ResourceTransfer, rec.ID.String(), CategorySettlement,
		"seq", rec.Seq,
		"from", rec.From.String(),
		"to", rec.To.String(),
		"amount", rec.Amount.String(),
	)
}

// OnBurn implements plugin.OnBurn.
func (e *Extension) OnBurn(ctx context.Context, rec *transfer.Record) error {
	return e.record(ctx, ActionTokenBurned, SeverityInfo,
		ResourceTransfer, rec.ID.String(), CategorySettlement,
		"seq", rec.Seq,
		"from", rec.From.String(),
		"amount", rec.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Ownership hooks
// ──────────────────────────────────────────────────

// OnOwnerChanged implements plugin.OnOwnerChanged.
// Ownership handoff is the highest-privilege operation the ledger has, so it
// audits at warning severity.
func (e *Extension) OnOwnerChanged(ctx context.Context, previous, current account.Identity) error {
	return e.record(ctx, ActionOwnerChanged, SeverityWarning,
		ResourceOwner, current.String(), CategoryGovernance,
		"previous", previous.String(),
		"current", current.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity string,
	resource, resourceID, category string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    OutcomeSuccess,
		Severity:   severity,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
