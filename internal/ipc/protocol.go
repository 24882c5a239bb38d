package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/tilecomp/internal/compositor"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload      CommandType = "RELOAD"
	CommandGetStatus   CommandType = "GET_STATUS"
	CommandGetOutputs  CommandType = "GET_OUTPUTS"
	CommandListWindows CommandType = "LIST_WINDOWS"
	CommandRepaint     CommandType = "REPAINT"
	CommandRedirect    CommandType = "REDIRECT"
	CommandUnredirect  CommandType = "UNREDIRECT"
	CommandSetLimiter  CommandType = "SET_LIMITER"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Session       compositor.Stats `json:"session"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	DaemonRunning bool             `json:"daemon_running"`
	DryRun        bool             `json:"dry_run"`
}

// OutputInfo represents information about a single output
type OutputInfo struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	RefreshRate float64 `json:"refresh_rate,omitempty"`
}

// OutputsData represents the data returned by GET_OUTPUTS
type OutputsData struct {
	Outputs []OutputInfo `json:"outputs"`
}

// WindowInfo describes one tracked window, bottom to top.
type WindowInfo struct {
	ID               uint32 `json:"id"`
	X                int    `json:"x"`
	Y                int    `json:"y"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Mapped           bool   `json:"mapped"`
	Redirected       bool   `json:"redirected"`
	BufferBound      bool   `json:"buffer_bound"`
	Overlay          bool   `json:"overlay"`
	AutoUnredirected bool   `json:"auto_unredirected,omitempty"`
	SyncWaiting      bool   `json:"sync_waiting,omitempty"`
	AppID            string `json:"app_id,omitempty"`
	Title            string `json:"title,omitempty"`
}

// WindowsData represents the data returned by LIST_WINDOWS
type WindowsData struct {
	Windows []WindowInfo `json:"windows"`
}

// WindowPayload addresses a single window.
type WindowPayload struct {
	WindowID uint32 `json:"window_id"`
}

// LimiterPayload is the payload for SET_LIMITER. An empty mode cycles to
// the next mode.
type LimiterPayload struct {
	Mode string `json:"mode,omitempty"`
}

// LimiterData is returned by SET_LIMITER.
type LimiterData struct {
	Mode string `json:"mode"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
