package lsp

import "encoding/json"

// Server command names accepted by envlens-ls via
// workspace/executeCommand. These must match the server exactly.
const (
	CmdListVariables       = "envlens.listVariables"
	CmdListFiles           = "envlens.listFiles"
	CmdSetActiveFile       = "envlens.setActiveFile"
	CmdListSources         = "envlens.listSources"
	CmdSetSourcePrecedence = "envlens.setSourcePrecedence"
	CmdGetInterpolation    = "envlens.getInterpolation"
	CmdSetInterpolation    = "envlens.setInterpolation"
	CmdGenerateExample     = "envlens.generateExample"
	CmdListWorkspaces      = "envlens.listWorkspaces"
	CmdSetWorkspaceRoot    = "envlens.setWorkspaceRoot"

	CmdRemoteList          = "envlens.remote.list"
	CmdRemoteAuthFields    = "envlens.remote.authFields"
	CmdRemoteAuthenticate  = "envlens.remote.authenticate"
	CmdRemoteNavigateScope = "envlens.remote.navigateScope"
	CmdRemoteSelectScope   = "envlens.remote.selectScope"
	CmdRemoteRefresh       = "envlens.remote.refresh"
	CmdRemoteShutdown      = "envlens.remote.shutdown"
)

// AcceptedNames are the client names a live envlens connection may be
// registered under. Name discovery checks these when the cached
// session id is stale.
var AcceptedNames = []string{"envlens-ls", "envlens_ls", "envlens"}

// DocumentURI is a file URI as used on the wire.
type DocumentURI string

// Position is a zero-based line/character position.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// ExecuteCommandParams is the workspace/executeCommand request payload.
type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// HoverParams is the textDocument/hover request payload.
type HoverParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// Hover is the textDocument/hover response payload. Contents may be a
// bare string or a MarkupContent object; both decode into Text.
type Hover struct {
	Contents HoverContents `json:"contents"`
}

// HoverContents normalizes the two hover content encodings the server
// is allowed to produce.
type HoverContents struct {
	Text string
}

// UnmarshalJSON accepts either "..." or {"kind":"markdown","value":"..."}.
func (h *HoverContents) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		h.Text = s
		return nil
	}
	var m struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	h.Text = m.Value
	return nil
}

// InitializeParams is the subset of the LSP initialize request this
// client sends.
type InitializeParams struct {
	ProcessID             int         `json:"processId"`
	RootURI               DocumentURI `json:"rootUri,omitempty"`
	Capabilities          any         `json:"capabilities"`
	InitializationOptions any         `json:"initializationOptions,omitempty"`
}

// InitializeResult is the subset of the initialize response this client
// consumes.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server build.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams is the (empty) initialized notification payload.
type InitializedParams struct{}
