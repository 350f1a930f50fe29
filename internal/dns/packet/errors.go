package packet

import "errors"

// ErrFormat is returned for any malformed wire-format condition: bad label
// prefix, pointer loop / excess hop count, offset beyond the message, or a
// decompressed name longer than 255 wire bytes.
var ErrFormat = errors.New("dns: format error")

// ErrTruncated is returned when a name or RR is cut off before the fields
// the wire format promises could be read.
var ErrTruncated = errors.New("dns: truncated message")
