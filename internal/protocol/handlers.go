package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
)

// ImageBuildLogSource is the Type stamped on image build log events.
const ImageBuildLogSource = "image-build"

type imageBuildInfo struct {
	WorkspaceID string `json:"workspaceID"`
	InstanceID  string `json:"instanceID"`
}

type imageBuildContent struct {
	Text string `json:"text"`
}

// handle dispatches pushed notifications to registered handlers. Decode
// failures are logged and dropped; returning an error would tear the
// connection down.
func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case NotifyInstanceUpdate:
		var inst core.WorkspaceInstance
		if err := decodeParams(req.Params(), &inst); err != nil {
			c.log.Warn("bad instance update", zap.Error(err))
			break
		}
		c.registry.InstanceUpdate(inst)
	case NotifyHeadlessWorkspaceLogs:
		var ev core.HeadlessLogEvent
		if err := decodeParams(req.Params(), &ev); err != nil {
			c.log.Warn("bad headless log event", zap.Error(err))
			break
		}
		c.registry.HeadlessLogs(ev)
	case NotifyWorkspaceImageBuildLogs:
		ev, err := decodeImageBuildLogs(req.Params())
		if err != nil {
			c.log.Warn("bad image build log event", zap.Error(err))
			break
		}
		c.registry.ImageBuildLogs(ev)
	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
	return reply(ctx, nil, nil)
}

// decodeParams accepts by-name params or a positional array whose first
// element is the payload.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		if len(args) == 0 {
			return fmt.Errorf("empty params")
		}
		raw = args[0]
	}
	return json.Unmarshal(raw, v)
}

// decodeImageBuildLogs handles [info, content] and {"info":…, "content":…}.
func decodeImageBuildLogs(raw json.RawMessage) (core.HeadlessLogEvent, error) {
	var info imageBuildInfo
	var content imageBuildContent
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return core.HeadlessLogEvent{}, err
		}
		if len(args) < 2 {
			return core.HeadlessLogEvent{}, fmt.Errorf("expected info and content params, got %d", len(args))
		}
		if err := json.Unmarshal(args[0], &info); err != nil {
			return core.HeadlessLogEvent{}, err
		}
		if err := json.Unmarshal(args[1], &content); err != nil {
			return core.HeadlessLogEvent{}, err
		}
	} else {
		var named struct {
			Info    imageBuildInfo    `json:"info"`
			Content imageBuildContent `json:"content"`
		}
		if err := json.Unmarshal(raw, &named); err != nil {
			return core.HeadlessLogEvent{}, err
		}
		info, content = named.Info, named.Content
	}
	return core.HeadlessLogEvent{
		WorkspaceID: info.WorkspaceID,
		InstanceID:  info.InstanceID,
		Type:        ImageBuildLogSource,
		Text:        content.Text,
	}, nil
}
