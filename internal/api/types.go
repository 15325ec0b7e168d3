package api

import (
	"encoding/json"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// DefaultSessionName is used when logging is started without a name.
const DefaultSessionName = "session"

// Outcome is the normalized result of one control command.
type Outcome struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Params carries optional command arguments.
type Params struct {
	SessionName string
}

// LoggingStartRequest is the body of /api/logging/start.
type LoggingStartRequest struct {
	SessionName string `json:"session_name"`
}

// Endpoints maps commands to their control API paths.
var Endpoints = map[model.Command]string{
	model.CommandConnect:      "/api/connect",
	model.CommandDisconnect:   "/api/disconnect",
	model.CommandStart:        "/api/start",
	model.CommandStop:         "/api/stop",
	model.CommandLoggingStart: "/api/logging/start",
	model.CommandLoggingStop:  "/api/logging/stop",
}

// StatusPath serves the authoritative status.
const StatusPath = "/api/status"
