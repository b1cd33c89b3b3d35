package vecdb

// Codec is the compressed-page codec contract that [CompressedColumn]
// pages through. The actual compressed page codec is deliberately an
// external collaborator — an opaque encode(values) -> bytes /
// decode(bytes, n) -> values pair; vecdb only depends on this paging
// contract, never on a specific compression algorithm.
type Codec[T Value] interface {
	// Encode packs values into a self-delimiting byte blob. len(values)
	// never exceeds the column's per-page capacity (16 KiB / sizeof(T)).
	Encode(values []T) []byte
	// Decode unpacks exactly n values from a blob previously produced by
	// Encode.
	Decode(data []byte, n int) []T
}

// identityCodec is the default [Codec]: it stores values as their raw
// byte representation with no compression. It exists so CompressedColumn
// is independently usable/testable without wiring in a real page codec.
type identityCodec[T Value] struct{}

func (identityCodec[T]) Encode(values []T) []byte {
	raw := encodeValues(values)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func (identityCodec[T]) Decode(data []byte, n int) []T {
	decoded := decodeValues[T](data)
	out := make([]T, n)
	copy(out, decoded[:n])
	return out
}
