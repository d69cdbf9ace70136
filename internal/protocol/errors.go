package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrUnknownTeam   = "E_UNKNOWN_TEAM"
	ErrNotFound      = "E_NOT_FOUND"
	ErrPhaseConflict = "E_PHASE_CONFLICT"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownAction:   {},
	ErrUnknownTeam:     {},
	ErrNotFound:        {},
	ErrPhaseConflict:   {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
