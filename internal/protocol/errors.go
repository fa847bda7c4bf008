package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Scene evaluation.
	ErrUnsupportedShape    = "E_UNSUPPORTED_SHAPE"
	ErrDuplicateIdentity   = "E_DUPLICATE_IDENTITY"
	ErrSnapshotUnavailable = "E_SNAPSHOT_UNAVAILABLE"
	ErrStampNotAdvanced    = "E_STAMP_NOT_ADVANCED"
	ErrInternal            = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrUnsupportedShape:    {},
	ErrDuplicateIdentity:   {},
	ErrSnapshotUnavailable: {},
	ErrStampNotAdvanced:    {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
