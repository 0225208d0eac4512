package protocol

// Protocol version constants. The control channel checks these during the
// hello exchange, before a session is admitted; replay artifacts are scoped
// by build fingerprint instead and never consult them.
const (
	// ProtocolVersion is the version this build speaks.
	ProtocolVersion uint32 = 1
	// MinVersion is the oldest peer version still accepted.
	MinVersion uint32 = 1
)

// Compatible reports whether a local and a remote endpoint can talk: both
// must be at or above the minimum supported version.
func Compatible(local, remote uint32) bool {
	return remote >= MinVersion && local >= MinVersion
}
