package protocol

// Allocation limits to prevent OOM via malicious length prefixes or
// unterminated input. These complement the bounds checks in decoder.go.
const (
	// MaxLineLength is the maximum length of one encoded line, terminator
	// excluded. Lines longer than this are rejected as a framing error.
	// 4MB of base64 covers roughly 3MB of binary frame, far above any
	// legitimate multiplexed payload.
	MaxLineLength = 4 * 1024 * 1024

	// MaxInnerLength is the maximum length of a frame's inner payload
	// after binary decoding. Also used as the general allocation ceiling
	// for length-prefixed fields.
	MaxInnerLength = 4 * 1024 * 1024

	// MaxNonceLength is the maximum length of a frame nonce. Nonces are
	// 16-byte UUIDs in practice; the ceiling leaves room for other
	// generators without admitting payload smuggling.
	MaxNonceLength = 64
)
