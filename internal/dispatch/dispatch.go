// Package dispatch implements the MCP Dispatcher (§4.J): the single entry
// point that sequences site authorization, argument sanitization, the
// confirmation round-trip, tool execution, and error mapping for every
// `tools/call` request. It is transport-agnostic — cmd/flycored binds it
// to a concrete stdio MCP listener.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flycode/flycored/internal/apperr"
	"github.com/flycode/flycored/internal/audit"
	"github.com/flycode/flycored/internal/config"
	"github.com/flycode/flycored/internal/confirm"
	"github.com/flycode/flycored/internal/fsops"
	"github.com/flycode/flycored/internal/procrun"
	"github.com/flycode/flycored/internal/sandbox"
	"github.com/flycode/flycored/internal/writes"
	"github.com/flycode/flycored/pkg/protocol"
	"github.com/google/uuid"
)

// ServerVersion is reported verbatim in `initialize` responses.
const ServerVersion = "0.1.0"

// Dispatcher is the MCP Dispatcher.
type Dispatcher struct {
	policy *config.PolicyConfig

	fs       *fsops.Service
	writeMgr *writes.Manager
	batchMgr *writes.BatchManager
	runner   *procrun.Runner
	confirm  *confirm.Center
	sink     *audit.Sink
}

// New builds a Dispatcher wiring together one policy snapshot's worth of
// components. Every dependency is pre-constructed by the caller
// (cmd/flycored) so the dispatcher itself holds no construction logic.
func New(policy *config.PolicyConfig, fs *fsops.Service, writeMgr *writes.Manager, batchMgr *writes.BatchManager, runner *procrun.Runner, center *confirm.Center, sink *audit.Sink) *Dispatcher {
	return &Dispatcher{
		policy:   policy,
		fs:       fs,
		writeMgr: writeMgr,
		batchMgr: batchMgr,
		runner:   runner,
		confirm:  center,
		sink:     sink,
	}
}

// Dispatch implements dispatch(site, envelope, trace_id) -> response_envelope (§4.J).
func (d *Dispatcher) Dispatch(ctx context.Context, site string, req protocol.Request, traceID string) protocol.Response {
	resp := protocol.Response{JSONRPC: "2.0", ID: req.ID}

	if req.JSONRPC != "2.0" || req.Method == "" {
		d.recordFailure(site, req.Method, traceID, uuid.NewString(), apperr.InvalidInputf("malformed envelope"))
		return withError(resp, apperr.InvalidInputf("malformed envelope"))
	}

	switch req.Method {
	case "initialize":
		resp.Result = protocol.InitializeResult{
			ProtocolVersion: protocol.ProtocolVersion,
			ServerInfo:      protocol.ServerInfo{Name: "flycored", Version: ServerVersion},
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
		}
		return resp
	case "tools/list":
		resp.Result = protocol.ToolsListResult{Tools: toolDescriptors}
		return resp
	case "tools/call":
		return d.dispatchToolCall(ctx, site, req, traceID)
	default:
		err := apperr.NotFoundf("unknown method %q", req.Method)
		d.recordFailure(site, req.Method, traceID, uuid.NewString(), err)
		return withError(resp, err)
	}
}

func (d *Dispatcher) dispatchToolCall(ctx context.Context, site string, req protocol.Request, traceID string) protocol.Response {
	resp := protocol.Response{JSONRPC: "2.0", ID: req.ID}
	start := time.Now()

	if err := sandbox.AssertSiteAllowed(d.policy.SiteAllowlist, site); err != nil {
		d.recordFailure(site, req.Method, traceID, uuid.NewString(), err)
		return withError(resp, err)
	}

	params := sanitizeArgs(req.Params)
	tool := stringArg(params, "name")
	arguments := mapArg(params, "arguments")
	if arguments == nil {
		arguments = map[string]any{}
	}
	arguments = sanitizeArgs(arguments)
	confirmationID := stringArg(params, "confirmationId")

	auditID := uuid.NewString()

	if confirmationID != "" {
		resolvedArgs, confirmErr := d.resolveConfirmation(confirmationID, site, tool)
		if confirmErr != nil {
			d.recordFailure(site, tool, traceID, auditID, confirmErr)
			return withError(resp, confirmErr)
		}
		arguments = resolvedArgs
		result, truncated, execErr := d.executeConfirmed(ctx, site, tool, arguments, traceID)
		return d.finish(resp, site, req.Method, tool, traceID, auditID, start, result, truncated, execErr)
	}

	requiresConfirmation := toolNeedsConfirmation(tool) && !d.confirm.ShouldSkipConfirmation(site, tool)
	if requiresConfirmation {
		pendingID, pendingErr := d.createPending(site, tool, arguments, traceID)
		if pendingErr != nil {
			d.recordFailure(site, tool, traceID, auditID, pendingErr)
			return withError(resp, pendingErr)
		}
		result := protocol.ToolCallResult{
			Content: []protocol.ContentItem{{Type: "text", Text: "Pending confirmation"}},
			IsError: false,
			Meta:    map[string]any{"audit_id": auditID, "truncated": false, "pendingConfirmationId": pendingID},
		}
		resp.Result = result
		d.sink.WriteEvent(audit.Event{ID: auditID, Site: site, Method: req.Method, Tool: tool, Status: audit.StatusPending, DurationMs: time.Since(start).Milliseconds()})
		return resp
	}

	result, truncated, execErr := d.executeTool(ctx, site, tool, arguments, traceID)
	return d.finish(resp, site, req.Method, tool, traceID, auditID, start, result, truncated, execErr)
}

func (d *Dispatcher) finish(resp protocol.Response, site, method, tool, traceID, auditID string, start time.Time, result any, truncated bool, execErr *apperr.Error) protocol.Response {
	if execErr != nil {
		d.recordFailure(site, tool, traceID, auditID, execErr)
		d.sink.WriteEvent(audit.Event{ID: auditID, Site: site, Method: method, Tool: tool, Status: audit.StatusFailed, DurationMs: time.Since(start).Milliseconds()})
		return withError(resp, execErr)
	}
	text, _ := json.MarshalIndent(result, "", "  ")
	resp.Result = protocol.ToolCallResult{
		Content: []protocol.ContentItem{{Type: "text", Text: string(text)}},
		IsError: false,
		Meta:    map[string]any{"audit_id": auditID, "truncated": truncated},
	}
	d.sink.WriteAudit(audit.Entry{Site: site, Command: tool, Outcome: audit.OutcomeOK, Truncated: truncated, TraceID: traceID, AuditID: auditID})
	d.sink.WriteEvent(audit.Event{ID: auditID, Site: site, Method: "tools/call", Tool: tool, Status: audit.StatusSuccess, Truncated: truncated, DurationMs: time.Since(start).Milliseconds()})
	return resp
}

// resolveConfirmation implements §4.J step 3.d: the entry must exist,
// match (site, tool), and be approved; the stored payload wins.
func (d *Dispatcher) resolveConfirmation(confirmationID, site, tool string) (map[string]any, *apperr.Error) {
	entry, ok := d.confirm.GetByID(confirmationID)
	if !ok {
		return nil, apperr.NotFoundf("confirmation %q not found", confirmationID)
	}
	if entry.Site != site || entry.Tool != tool {
		return nil, apperr.Forbiddenf("confirmation %q does not match (site, tool)", confirmationID)
	}
	switch entry.Status {
	case confirm.StatusApproved:
		payload, _ := d.confirm.GetRequestPayload(confirmationID)
		m, ok := payload.(map[string]any)
		if !ok {
			return nil, apperr.Internalf("confirmation %q has no resumable payload", confirmationID)
		}
		return m, nil
	case confirm.StatusPending:
		return nil, apperr.WriteConfirmationRequiredf("confirmation %q is still pending", confirmationID)
	default:
		return nil, apperr.Forbiddenf("confirmation %q was not approved", confirmationID)
	}
}

// createPending implements §4.J step 3.e.
func (d *Dispatcher) createPending(site, tool string, arguments map[string]any, traceID string) (string, *apperr.Error) {
	switch tool {
	case "fs.write":
		prep, err := d.writeMgr.Prepare(writes.PrepareInput{
			Site: site, TraceID: traceID,
			Path: stringArg(arguments, "path"), Mode: fsops.WriteMode(stringArg(arguments, "mode")),
			Content: stringArg(arguments, "content"), ExpectedSHA256: stringArg(arguments, "expected_sha256"),
			DisableConfirmation: true,
		})
		if err != nil {
			return "", err
		}
		entry := d.confirm.CreatePending(confirm.CreateInput{
			Site: site, Tool: tool, Summary: prep.Summary, TraceID: traceID,
			Request: map[string]any{"kind": "write-commit", "op_id": prep.OpID, "trace_id": traceID},
		})
		return entry.ID, nil
	case "fs.writeBatch":
		prep, err := d.batchMgr.Prepare(writes.BatchPrepareInput{
			Site: site, TraceID: traceID, Files: decodeBatchFiles(arguments), DisableConfirmation: true,
		})
		if err != nil {
			return "", err
		}
		entry := d.confirm.CreatePending(confirm.CreateInput{
			Site: site, Tool: tool, Summary: prep.Summary, TraceID: traceID,
			Request: map[string]any{"kind": "write-batch-commit", "op_id": prep.OpID, "trace_id": traceID},
		})
		return entry.ID, nil
	default:
		entry := d.confirm.CreatePending(confirm.CreateInput{
			Site: site, Tool: tool, Summary: tool, TraceID: traceID,
			Request: map[string]any{"kind": "tool-call", "name": tool, "arguments": arguments, "trace_id": traceID},
		})
		return entry.ID, nil
	}
}

// executeConfirmed resumes execution from an approved confirmation's
// stored payload (§4.J step 3.f).
func (d *Dispatcher) executeConfirmed(ctx context.Context, site, tool string, payload map[string]any, traceID string) (any, bool, *apperr.Error) {
	kind := stringArg(payload, "kind")
	switch kind {
	case "write-commit":
		res, err := d.writeMgr.Commit(writes.CommitInput{OpID: stringArg(payload, "op_id"), ConfirmedByUser: true, Site: site})
		if err != nil {
			return nil, false, err
		}
		return res, false, nil
	case "write-batch-commit":
		res, err := d.batchMgr.Commit(writes.BatchCommitInput{OpID: stringArg(payload, "op_id"), ConfirmedByUser: true, Site: site})
		if err != nil {
			return nil, false, err
		}
		return res, false, nil
	case "tool-call":
		arguments := mapArg(payload, "arguments")
		if arguments == nil {
			arguments = map[string]any{}
		}
		return d.executeTool(ctx, site, stringArg(payload, "name"), arguments, traceID)
	default:
		return nil, false, apperr.Internalf("unresumable confirmation payload kind %q", kind)
	}
}

// executeTool implements §4.J step 3.f for tools that don't need a
// confirmation round-trip (or were just validated as approved and are
// being executed for the first time via inline disable_confirmation).
func (d *Dispatcher) executeTool(ctx context.Context, site, tool string, arguments map[string]any, traceID string) (any, bool, *apperr.Error) {
	switch tool {
	case "fs.ls":
		entries, err := d.fs.Ls(stringArg(arguments, "path"), intArg(arguments, "depth"), stringArg(arguments, "glob"))
		if err != nil {
			return nil, false, err
		}
		return entries, false, nil

	case "fs.mkdir":
		if err := d.fs.Mkdir(stringArg(arguments, "path"), boolArg(arguments, "parents")); err != nil {
			return nil, false, err
		}
		return map[string]any{"ok": true}, false, nil

	case "fs.read":
		res, err := d.fs.Read(stringArg(arguments, "path"), fsops.ReadOptions{
			Range: stringArg(arguments, "range"), Line: intArg(arguments, "line"), Lines: stringArg(arguments, "lines"),
			Encoding: stringArg(arguments, "encoding"), IncludeMeta: boolArg(arguments, "include_meta"),
		})
		if err != nil {
			return nil, false, err
		}
		return res, res.Truncated, nil

	case "fs.search":
		res, err := d.fs.Search(stringArg(arguments, "path"), fsops.SearchOptions{
			Query: stringArg(arguments, "query"), Regex: boolArg(arguments, "regex"), Glob: stringArg(arguments, "glob"),
			Limit: intArg(arguments, "limit"), Extensions: stringSliceArg(arguments, "extensions"),
			MinBytes: int64(intArg(arguments, "min_bytes")), MaxBytes: int64(intArg(arguments, "max_bytes")),
			ContextLines: intArg(arguments, "context_lines"),
		})
		if err != nil {
			return nil, false, err
		}
		return res, res.Truncated, nil

	case "fs.write":
		prep, err := d.writeMgr.Prepare(writes.PrepareInput{
			Site: site, TraceID: traceID, Path: stringArg(arguments, "path"),
			Mode: fsops.WriteMode(stringArg(arguments, "mode")), Content: stringArg(arguments, "content"),
			ExpectedSHA256: stringArg(arguments, "expected_sha256"), DisableConfirmation: true,
		})
		if err != nil {
			return nil, false, err
		}
		res, err := d.writeMgr.Commit(writes.CommitInput{OpID: prep.OpID, ConfirmedByUser: true, Site: site})
		if err != nil {
			return nil, false, err
		}
		return res, false, nil

	case "fs.writeBatch":
		prep, err := d.batchMgr.Prepare(writes.BatchPrepareInput{Site: site, TraceID: traceID, Files: decodeBatchFiles(arguments), DisableConfirmation: true})
		if err != nil {
			return nil, false, err
		}
		res, err := d.batchMgr.Commit(writes.BatchCommitInput{OpID: prep.OpID, ConfirmedByUser: true, Site: site})
		if err != nil {
			return nil, false, err
		}
		return res, false, nil

	case "fs.rm":
		res, err := d.fs.Rm(stringArg(arguments, "path"), boolArg(arguments, "recursive"), boolArg(arguments, "force"))
		if err != nil {
			return nil, false, err
		}
		return res, false, nil

	case "fs.mv":
		if err := d.fs.Mv(stringArg(arguments, "from"), stringArg(arguments, "to"), boolArg(arguments, "overwrite")); err != nil {
			return nil, false, err
		}
		return map[string]any{"ok": true}, false, nil

	case "fs.chmod":
		mode, err := d.fs.Chmod(stringArg(arguments, "path"), stringArg(arguments, "mode"))
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"mode": mode}, false, nil

	case "fs.diff":
		_, hasContent := arguments["right_content"]
		out, err := d.fs.Diff(fsops.DiffOptions{
			LeftPath: stringArg(arguments, "left_path"), RightPath: stringArg(arguments, "right_path"),
			RightContent: stringArg(arguments, "right_content"), HasRightContent: hasContent,
			ContextLines: intArg(arguments, "context_lines"),
		})
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"diff": out}, false, nil

	case "process.run":
		res, err := d.runner.Run(ctx, procrun.RunInput{
			Command: stringArg(arguments, "command"), Args: stringSliceArg(arguments, "args"),
			Cwd: stringArg(arguments, "cwd"), TimeoutMs: int64Arg(arguments, "timeout_ms"), Env: stringMapArg(arguments, "env"),
		})
		if err != nil {
			return nil, false, err
		}
		return res, res.Truncated, nil

	case "shell.exec":
		res, err := d.runner.Exec(ctx, procrun.ExecInput{
			Command: stringArg(arguments, "command"), Cwd: stringArg(arguments, "cwd"),
			TimeoutMs: int64Arg(arguments, "timeout_ms"), Env: stringMapArg(arguments, "env"),
		})
		if err != nil {
			return nil, false, err
		}
		return res, res.Truncated, nil

	default:
		return nil, false, apperr.NotFoundf("unknown tool %q", tool)
	}
}

func decodeBatchFiles(arguments map[string]any) []writes.BatchFileInput {
	raw, ok := arguments["files"].([]any)
	if !ok {
		return nil
	}
	out := make([]writes.BatchFileInput, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, writes.BatchFileInput{
			Path: stringArg(m, "path"), Mode: fsops.WriteMode(stringArg(m, "mode")),
			Content: stringArg(m, "content"), ExpectedSHA256: stringArg(m, "expected_sha256"),
		})
	}
	return out
}

func (d *Dispatcher) recordFailure(site, command, traceID, auditID string, err *apperr.Error) {
	if auditID == "" {
		auditID = uuid.NewString()
	}
	d.sink.WriteAudit(audit.Entry{
		Site: site, Command: command, Outcome: audit.OutcomeError, TraceID: traceID, AuditID: auditID,
		ErrorCode: string(err.Code), Message: err.Error(),
	})
}

func withError(resp protocol.Response, err *apperr.Error) protocol.Response {
	resp.Error = &protocol.RPCError{
		Code:    err.JSONRPCCode(),
		Message: err.Error(),
		Data:    protocol.ErrorData{AppCode: string(err.Code), StatusCode: err.HTTPStatus()},
	}
	return resp
}
