package mcp

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// WindowInput names a top-level window.
type WindowInput struct {
	WindowID uint32 `json:"window_id" jsonschema:"X11 window id of a top-level window, as listed by list_windows"`
}

// SetLimiterInput is the input for the set_limiter tool.
type SetLimiterInput struct {
	Mode string `json:"mode,omitempty" jsonschema:"Limiter mode: adaptive, vsync or disabled. Empty cycles to the next mode."`
}

// SetLimiterOutput is the output for the set_limiter tool.
type SetLimiterOutput struct {
	Mode string `json:"mode"`
}

// ActionOutput acknowledges a command.
type ActionOutput struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
