package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// SizeLen is the encoded width of the Size prefix in bytes.
//
// Size is a message with a single fixed32 field, so its encoding is one tag
// byte plus four value bytes for every uint32. SizeLen is measured once from a
// sentinel encoding; readers always consume exactly this many bytes before a
// payload. Changing the Size field to a varint type would break this.
var SizeLen = len(AppendSize(nil, 1))

// AppendSize appends the Size encoding of v to b.
func AppendSize(b []byte, v uint32) []byte {
	b = protowire.AppendTag(b, fieldSizeValue, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

// DecodeSize decodes a Size prefix. b must hold exactly one complete Size
// encoding with nothing after it.
func DecodeSize(b []byte) (uint32, error) {
	if len(b) != SizeLen {
		return 0, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedSize, len(b), SizeLen)
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSize, protowire.ParseError(n))
	}
	if num != fieldSizeValue || typ != protowire.Fixed32Type {
		return 0, fmt.Errorf("%w: unexpected field %d wire type %d", ErrMalformedSize, num, typ)
	}
	v, m := protowire.ConsumeFixed32(b[n:])
	if m < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSize, protowire.ParseError(m))
	}
	if n+m != len(b) {
		return 0, fmt.Errorf("%w: %d trailing bytes", ErrMalformedSize, len(b)-n-m)
	}
	return v, nil
}
