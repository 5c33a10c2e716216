// Package composite runs external compositors that finish a rendered clip, e.g. by muxing the
// source audio back in.
package composite

import "encoding/json"

// ManifestFile is the manifest name looked up in every compositor directory.
const ManifestFile = "compositor.json"

// Manifest describes a compositor's metadata.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Options     json.RawMessage `json:"options,omitempty"`
}

// Request is sent to a compositor on stdin.
type Request struct {
	AssetID   string          `json:"asset_id"`
	Clip      string          `json:"clip"`
	Audio     string          `json:"audio"`
	Output    string          `json:"output"`
	Watermark string          `json:"watermark,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// Response is read from a compositor's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Output  string          `json:"output,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Compositor is a discovered compositor with its manifest and location.
type Compositor struct {
	Manifest   Manifest
	Path       string
	Executable string
}
