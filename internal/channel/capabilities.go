package channel

// Capabilities describes what a platform supports.
type Capabilities struct {
	Markdown       bool `json:"markdown"`
	Edit           bool `json:"edit"`
	Threads        bool `json:"threads"`
	NativeCommands bool `json:"native_commands"`
	// RequiresCredential is false when replies ride on a per-interaction
	// token and no workspace bot token is needed.
	RequiresCredential bool `json:"requires_credential"`
}

// Descriptor is the static metadata of a platform adapter.
type Descriptor struct {
	Type           Type           `json:"type"`
	DisplayName    string         `json:"display_name"`
	Capabilities   Capabilities   `json:"capabilities"`
	OutboundPolicy OutboundPolicy `json:"outbound_policy"`
}
