// Package closecode catalogs the WebSocket close codes a gateway session
// cares about and classifies them by what the session should do next:
// stop entirely, or reconnect and resume.
package closecode

// Code is a WebSocket close status code, per RFC 6455 section 7.4 and the
// IANA registry.
type Code int

const (
	Normal            Code = 1000
	GoingAway         Code = 1001
	ProtocolError     Code = 1002
	UnexpectedData    Code = 1003
	NoReason          Code = 1005
	Abruptly          Code = 1006
	InconsistentData  Code = 1007
	PolicyViolation   Code = 1008
	MessageTooBig     Code = 1009
	MissingExtension  Code = 1010
	InternalServerErr Code = 1011
)

// entry describes one known close code: its name for logging, and
// whether a session seeing it should give up rather than reconnect.
type entry struct {
	name    string
	nonResumable bool
}

var table = map[Code]entry{
	Normal:            {name: "normal"},
	GoingAway:         {name: "going_away"},
	ProtocolError:     {name: "protocol_error", nonResumable: true},
	UnexpectedData:    {name: "unexpected_data", nonResumable: true},
	NoReason:          {name: "no_reason"},
	Abruptly:          {name: "abruptly"},
	InconsistentData:  {name: "inconsistent_data", nonResumable: true},
	PolicyViolation:   {name: "policy_violation", nonResumable: true},
	MessageTooBig:     {name: "message_too_big", nonResumable: true},
	MissingExtension:  {name: "missing_extension", nonResumable: true},
	InternalServerErr: {name: "internal_server_error"},
}

// Name returns a close code's registered name. Codes without a table
// entry get "iana_registry" in the 3000-3999 range, "private_use" in the
// 4000-4999 range, and "unknown" otherwise.
func Name(c Code) string {
	if e, ok := table[c]; ok {
		return e.name
	}
	switch {
	case c >= 3000 && c <= 3999:
		return "iana_registry"
	case c >= 4000 && c <= 4999:
		return "private_use"
	default:
		return "unknown"
	}
}

// Resumable reports whether a session that was closed with this code
// should attempt to reconnect. Codes outside the known table (including
// the IANA and private-use ranges, which belong to whatever protocol
// assigned them) are treated as resumable by default, matching how an
// unrecognized close code is otherwise just noise to retry past.
func Resumable(c Code) bool {
	e, ok := table[c]
	if !ok {
		return true
	}
	return !e.nonResumable
}
