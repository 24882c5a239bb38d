package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/tilecomp/internal/ipc"
)

func (s *Server) handleGetStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ipc.StatusData, error) {
	status, err := s.daemon.GetStatus()
	if err != nil {
		return nil, ipc.StatusData{}, err
	}
	return nil, *status, nil
}

func (s *Server) handleListOutputs(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ipc.OutputsData, error) {
	outputs, err := s.daemon.GetOutputs()
	if err != nil {
		return nil, ipc.OutputsData{}, err
	}
	if outputs.Outputs == nil {
		outputs.Outputs = []ipc.OutputInfo{}
	}
	return nil, *outputs, nil
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ipc.WindowsData, error) {
	windows, err := s.daemon.ListWindows()
	if err != nil {
		return nil, ipc.WindowsData{}, err
	}
	if windows.Windows == nil {
		windows.Windows = []ipc.WindowInfo{}
	}
	return nil, *windows, nil
}

func (s *Server) handleRepaint(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ActionOutput, error) {
	if err := s.daemon.Repaint(); err != nil {
		return nil, ActionOutput{}, err
	}
	return nil, ActionOutput{OK: true, Message: "full repaint scheduled"}, nil
}

func (s *Server) handleReload(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ActionOutput, error) {
	if err := s.daemon.Reload(); err != nil {
		s.logger.Warn("mcp reload failed", "error", err)
		return nil, ActionOutput{}, err
	}
	s.logger.Info("mcp reload", "ok", true)
	return nil, ActionOutput{OK: true, Message: "configuration reloaded"}, nil
}

func (s *Server) handleSetLimiter(_ context.Context, _ *mcpsdk.CallToolRequest, args SetLimiterInput) (*mcpsdk.CallToolResult, SetLimiterOutput, error) {
	mode, err := s.daemon.SetLimiter(args.Mode)
	if err != nil {
		return nil, SetLimiterOutput{}, err
	}
	s.logger.Info("mcp set_limiter", "mode", mode)
	return nil, SetLimiterOutput{Mode: mode}, nil
}

func (s *Server) handleRedirect(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, ActionOutput, error) {
	if args.WindowID == 0 {
		return nil, ActionOutput{}, fmt.Errorf("window_id is required")
	}
	if err := s.daemon.Redirect(args.WindowID); err != nil {
		return nil, ActionOutput{}, err
	}
	return nil, ActionOutput{OK: true, Message: fmt.Sprintf("window %#x redirected", args.WindowID)}, nil
}

func (s *Server) handleUnredirect(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, ActionOutput, error) {
	if args.WindowID == 0 {
		return nil, ActionOutput{}, fmt.Errorf("window_id is required")
	}
	if err := s.daemon.Unredirect(args.WindowID); err != nil {
		return nil, ActionOutput{}, err
	}
	return nil, ActionOutput{OK: true, Message: fmt.Sprintf("window %#x unredirected", args.WindowID)}, nil
}
