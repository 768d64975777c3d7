package server

// Request bodies for WebSocket commands, validated with go-playground/validator.

// ClipRequest is the request body for clips/activate and clips/toggle.
type ClipRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}

// ClipSrcRequest is the request body for clips/src.
type ClipSrcRequest struct {
	ID  string `json:"id" validate:"required,max=64"`
	Src string `json:"src" validate:"required,max=2048,http_url"`
}

// SilenceUpdateRequest is the request body for silence/update.
type SilenceUpdateRequest struct {
	ThresholdDB *float64 `json:"threshold_db" validate:"omitempty,gte=-60,lte=0"`
	DurationMs  *int64   `json:"duration_ms" validate:"omitempty,gte=500,lte=300000"`
	RecoveryMs  *int64   `json:"recovery_ms" validate:"omitempty,gte=500,lte=60000"`
}
