// Package mcp exposes the compositor daemon's controls as MCP tools.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/tilecomp/internal/ipc"
)

const (
	ServerName    = "tilecomp"
	ServerVersion = "0.1.0"
)

// Daemon is the IPC surface the tools call. *ipc.Client implements it.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	GetOutputs() (*ipc.OutputsData, error)
	ListWindows() (*ipc.WindowsData, error)
	Repaint() error
	Reload() error
	Redirect(windowID uint32) error
	Unredirect(windowID uint32) error
	SetLimiter(mode string) (string, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for a running tilecomp daemon.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates an MCP server that forwards tool calls to daemon.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{daemon: daemon, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report the compositing session: whether it is active, the fps limiter mode, refresh rate, redraw timing, frames painted and pending damage.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_outputs",
		Description: "List the physical outputs with their geometry and refresh rate.",
	}, s.handleListOutputs)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the top-level windows bottom to top with their compositing state (redirected, buffer bound, overlay, waiting for frame sync).",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "repaint",
		Description: "Damage the whole screen so the next frame repaints everything.",
	}, s.handleRepaint)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reload_config",
		Description: "Reload the daemon configuration from disk and apply the live-reloadable settings.",
	}, s.handleReload)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_limiter",
		Description: "Switch the fps limiter to adaptive, vsync or disabled. Without a mode the limiter cycles to the next one. Returns the mode now in effect.",
	}, s.handleSetLimiter)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "redirect_window",
		Description: "Composite a window again after it was unredirected.",
	}, s.handleRedirect)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "unredirect_window",
		Description: "Stop compositing a window so it draws straight to the screen as an overlay.",
	}, s.handleUnredirect)
}
