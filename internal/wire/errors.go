package wire

import "errors"

var (
	ErrFormErr      = errors.New("wire: malformed message (FORMERR)")
	ErrPointerLoop  = errors.New("wire: compression pointer loop or excessive depth")
	ErrPointerFwd   = errors.New("wire: compression pointer does not point backward")
	ErrLabelTooLong = errors.New("wire: label exceeds 63 octets")
	ErrNameTooLong  = errors.New("wire: name exceeds 255 octets")
	ErrShortBuffer  = errors.New("wire: buffer shorter than declared length")
)

// Truncated is returned by Write when the message would exceed the
// caller's size budget; Write has already dropped the RR that did not
// fit and everything after it, keeping the complete RRs before it, and
// the caller sets TC=1 per spec.md §4.1.
type Truncated struct {
	// Section the truncation happened in, 0=answer,1=authority,2=additional
	Section int
}

func (e *Truncated) Error() string { return "wire: message truncated" }
