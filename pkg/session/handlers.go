package session

import (
	"context"
	"encoding/json"
	"fmt"

	internalerrors "github.com/jamesprial/mcp-core/internal/errors"
	"github.com/jamesprial/mcp-core/pkg/mcpcontext"
	"github.com/jamesprial/mcp-core/pkg/middleware"
	"github.com/jamesprial/mcp-core/pkg/protocol"
)

// registerHandlers wires the standard MCP method set onto the Session's
// Dispatcher. It is called once from New.
func (s *Session) registerHandlers() {
	s.dispatcher.HandleFunc(protocol.MethodInitialize, s.handleInitialize)
	s.dispatcher.HandleFunc(protocol.MethodPing, s.handlePing)
	s.dispatcher.HandleFunc(protocol.MethodToolsList, s.handleToolsList)
	s.dispatcher.HandleFunc(protocol.MethodToolsCall, s.handleToolsCall)
	s.dispatcher.HandleFunc(protocol.MethodResourcesList, s.handleResourcesList)
	s.dispatcher.HandleFunc(protocol.MethodResourcesRead, s.handleResourcesRead)
	s.dispatcher.HandleFunc(protocol.MethodPromptsList, s.handlePromptsList)
	s.dispatcher.HandleFunc(protocol.MethodPromptsGet, s.handlePromptsGet)

	s.dispatcher.OnNotify(protocol.MethodInitialized, func(ctx context.Context, params json.RawMessage) {
		s.setState(StateReady)
	})
}

func (s *Session) handleInitialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var params protocol.InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeInvalidParams, Message: "invalid initialize params: " + err.Error()}
	}

	version, ok := negotiateVersion(params.ProtocolVersion)
	if !ok {
		return nil, &middleware.ErrorWithCode{
			Code:    protocol.CodeInvalidParams,
			Message: "unsupported protocol version",
			Data:    map[string]any{"supported": protocol.SupportedProtocolVersions, "requested": params.ProtocolVersion},
		}
	}

	s.mu.Lock()
	s.negotiatedVer = version
	s.mu.Unlock()

	s.logger.Info("session initializing",
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return protocol.InitializeResult{
		ProtocolVersion: version,
		ServerInfo: protocol.ServerInfoResponse{
			Name:    s.cfg.ServerInfo.Name,
			Version: s.cfg.ServerInfo.Version,
		},
		Capabilities: s.capabilities(),
	}, nil
}

// negotiateVersion picks the requested version when this server speaks it,
// otherwise the newest supported version older than the request (versions
// are YYYY-MM-DD strings, so they order lexically, and the supported list is
// newest first). It fails only when every supported version is newer than
// the request.
func negotiateVersion(requested string) (string, bool) {
	for _, v := range protocol.SupportedProtocolVersions {
		if v <= requested {
			return v, true
		}
	}
	return "", false
}

func (s *Session) capabilities() protocol.Capabilities {
	var caps protocol.Capabilities
	if s.cfg.Tools != nil {
		caps.Tools = &protocol.ToolsCapability{ListChanged: s.cfg.ToolsListChanged}
	}
	if s.cfg.Resources != nil {
		caps.Resources = &protocol.ResourcesCapability{ListChanged: s.cfg.ResourcesListChanged}
	}
	if s.cfg.Prompts != nil {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: s.cfg.PromptsListChanged}
	}
	return caps
}

func (s *Session) handlePing(ctx context.Context, raw json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *Session) handleToolsList(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Tools == nil {
		return protocol.ToolsListResult{}, nil
	}
	return protocol.ToolsListResult{Tools: s.cfg.Tools.List()}, nil
}

func (s *Session) handleToolsCall(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Tools == nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeToolNotFound, Message: "no tools registered"}
	}

	var params protocol.ToolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	tool, err := s.cfg.Tools.Get(params.Name)
	if err != nil {
		return nil, toDispatchError(err)
	}

	if s.cfg.Schema != nil {
		def := tool.Definition()
		if len(def.InputSchema) > 0 {
			if _, compileErr := s.cfg.Schema.Compile(def.Name, def.InputSchema); compileErr != nil {
				s.logger.Warn("failed to compile tool input schema", "tool", def.Name, "error", compileErr)
			} else if validationErrs, valErr := s.cfg.Schema.Validate(def.Name, params.Arguments); valErr == nil && len(validationErrs) > 0 {
				return nil, &middleware.ErrorWithCode{
					Code:    protocol.CodeInvalidParams,
					Message: fmt.Sprintf("arguments for tool %q failed validation", def.Name),
					Data:    validationErrs,
				}
			}
		}
	}

	if params.Meta != nil && params.Meta.ProgressToken != nil && s.cfg.Sender != nil {
		emitter := mcpcontext.NewProgressEmitter(ctx, func(ctx context.Context, method string, p any) error {
			return s.dispatcher.Notify(ctx, method, p)
		}, params.Meta.ProgressToken)
		ctx = mcpcontext.WithProgress(ctx, emitter)
	}

	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		return protocol.ToolsCallResult{
			Content: []protocol.Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	return toToolsCallResult(result), nil
}

// toToolsCallResult lets a Tool return either a ready-made
// protocol.ToolsCallResult/[]protocol.Content, or a plain value that gets
// wrapped as a single text content block for convenience.
func toToolsCallResult(result any) protocol.ToolsCallResult {
	switch v := result.(type) {
	case protocol.ToolsCallResult:
		return v
	case []protocol.Content:
		return protocol.ToolsCallResult{Content: v}
	case protocol.Content:
		return protocol.ToolsCallResult{Content: []protocol.Content{v}}
	case string:
		return protocol.ToolsCallResult{Content: []protocol.Content{{Type: "text", Text: v}}}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return protocol.ToolsCallResult{Content: []protocol.Content{{Type: "text", Text: fmt.Sprintf("%v", v)}}}
		}
		return protocol.ToolsCallResult{Content: []protocol.Content{{Type: "text", Text: string(b)}}}
	}
}

func (s *Session) handleResourcesList(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Resources == nil {
		return protocol.ResourcesListResult{}, nil
	}
	return protocol.ResourcesListResult{Resources: s.cfg.Resources.List()}, nil
}

func (s *Session) handleResourcesRead(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Resources == nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeResourceNotFound, Message: "no resources registered"}
	}

	var params protocol.ResourcesReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeInvalidParams, Message: "invalid resources/read params: " + err.Error()}
	}

	res, err := s.cfg.Resources.Get(ctx, params.URI)
	if err != nil {
		return nil, toDispatchError(err)
	}

	return protocol.ResourcesReadResult{
		Contents: []protocol.ResourceContent{{
			URI:      res.URI,
			MimeType: res.MimeType,
			Text:     res.Text,
			Blob:     res.Blob,
		}},
	}, nil
}

func (s *Session) handlePromptsList(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Prompts == nil {
		return protocol.PromptsListResult{}, nil
	}
	return protocol.PromptsListResult{Prompts: s.cfg.Prompts.List()}, nil
}

func (s *Session) handlePromptsGet(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.cfg.Prompts == nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodePromptNotFound, Message: "no prompts registered"}
	}

	var params protocol.PromptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeInvalidParams, Message: "invalid prompts/get params: " + err.Error()}
	}

	prompt, err := s.cfg.Prompts.Get(params.Name)
	if err != nil {
		return nil, toDispatchError(err)
	}

	result, err := prompt.Render(ctx, params.Arguments)
	if err != nil {
		return nil, &middleware.ErrorWithCode{Code: protocol.CodeInternalError, Message: "render prompt: " + err.Error()}
	}
	return result, nil
}

// toDispatchError passes a *internalerrors.DomainError through unchanged so
// the dispatcher's errorResponse can extract its JSON-RPC code and redacted
// context; anything else is wrapped as a generic internal error.
func toDispatchError(err error) error {
	if de, ok := err.(*internalerrors.DomainError); ok {
		return de
	}
	return &middleware.ErrorWithCode{Code: protocol.CodeInternalError, Message: err.Error()}
}
