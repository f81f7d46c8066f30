package model

import "encoding/json"

// Format is the serialization mode for element listings.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCompact Format = "compact"
	FormatMinimal Format = "minimal"
)

// Request is the wire shape of one daemon request line. Fields not
// used by a given command are simply left zero; Core.Dispatch validates
// which fields a command requires and returns bad_request otherwise.
type Request struct {
	Command string `json:"command"`

	// Common flags.
	Format    Format `json:"format,omitempty"`
	Focus     string `json:"focus,omitempty"`
	Match     string `json:"match,omitempty"`
	MatchKind string `json:"match_kind,omitempty"` // "glob" | "regex"
	Region    string `json:"region,omitempty"`
	Diff      bool   `json:"diff,omitempty"`
	Summary   bool   `json:"summary,omitempty"`
	Force     bool   `json:"force,omitempty"`
	Verify    bool   `json:"verify,omitempty"`
	Heal      bool   `json:"heal,omitempty"`
	App       string `json:"app,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`

	// Resolver target fields. N is the mark number for click_mark;
	// the Resolver's {mark:int} target form reads from it.
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role,omitempty"`
	Index    int    `json:"index,omitempty"`
	Selector string `json:"selector,omitempty"`
	N        int    `json:"n,omitempty"`

	// find/query
	Query string `json:"query,omitempty"`

	// pointer/keyboard actions
	X     int    `json:"x,omitempty"`
	Y     int    `json:"y,omitempty"`
	DX    int    `json:"dx,omitempty"`
	DY    int    `json:"dy,omitempty"`
	Ticks int    `json:"ticks,omitempty"`
	Text  string `json:"text,omitempty"`
	Keys  string `json:"key,omitempty"`

	// web actions
	URL string `json:"url,omitempty"`

	// screenshot
	Mark bool `json:"mark,omitempty"`

	// batch
	Script          string `json:"script,omitempty"`
	ContinueOnError bool   `json:"continue_on_error,omitempty"`
	Verbose         bool   `json:"verbose,omitempty"`
}

// Response is the wire shape of one daemon response line.
type Response struct {
	OK      bool           `json:"ok"`
	Command string         `json:"command"`
	Data    map[string]any `json:"data,omitempty"`

	StatusError *Error `json:"status_error,omitempty"`
}

// ParseRequestLine decodes one daemon request line.
func ParseRequestLine(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// OKResponse builds a successful response for command with the given data.
func OKResponse(command string, data map[string]any) Response {
	if data == nil {
		data = map[string]any{}
	}
	return Response{OK: true, Command: command, Data: data}
}

// ErrResponse builds a failure response; err is normalized via AsError.
func ErrResponse(command string, err error) Response {
	return Response{OK: false, Command: command, StatusError: AsError(err)}
}

// MarshalLine serializes r as a single JSON line with embedded newlines
// escaped (encoding/json already escapes them inside string values, and the
// overall object is emitted without a trailing record separator here — the
// daemon writer appends exactly one '\n').
func (r Response) MarshalLine() ([]byte, error) {
	return json.Marshal(r)
}
