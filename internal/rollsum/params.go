package rollsum

// DefaultBits is the number of low bits of the rolling checksum that must be
// set for a boundary to be declared, giving an average chunk size of 2^bits
// bytes (2^13 = 8 KiB).
const DefaultBits = 13

// Params configures a Chunker's target chunk size.
type Params struct {
	Bits uint
	mask uint32
}

// NewParams builds chunking parameters targeting an average chunk size of
// 2^bits bytes. bits must be in [1, 31].
func NewParams(bits uint) Params {
	if bits == 0 || bits > 31 {
		bits = DefaultBits
	}
	return Params{
		Bits: bits,
		mask: uint32(1)<<bits - 1,
	}
}
