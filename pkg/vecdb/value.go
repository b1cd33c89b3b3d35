package vecdb

import "unsafe"

// Index is the constraint satisfied by a column's index type: I is
// convertible to/from a non-negative integer. Defining a distinct named
// type per column (e.g. `type TxIndex uint64`) prevents accidentally
// mixing indices from different columns at call sites.
type Index interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

func toUsize[I Index](i I) int { return int(i) }

func fromUsize[I Index](i int) I { return I(i) }

// Value is the constraint satisfied by a column's stored value type:
// fixed-size "plain old data" with no padding-sensitive layout. Every
// type in the set has an identical in-memory and on-disk (little-endian,
// for the widths that matter) representation, so values can be read and
// written via direct, unsafe byte reinterpretation instead of per-field
// marshaling.
type Value interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// sizeOfT returns sizeof(T) the way the on-disk format computes it:
// (region.len - 64) must be a multiple of sizeof(T).
func sizeOfT[T Value]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// encodeValues reinterprets a []T slice as its raw little-endian byte
// representation without per-element copying. Callers must not mutate
// values while the returned slice is in use.
//
// This assumes a little-endian host. [Header]'s format flag is a single
// byte and the header fields are encoded little-endian explicitly, so
// the header reads the same on any host; values written on a
// big-endian host are not detected on open.
func encodeValues[T Value](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	n := sizeOfT[T]()
	return unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*n)
}

// decodeValues reinterprets a raw byte buffer as a []T slice. The buffer
// must be a multiple of sizeof(T) in length; callers must not retain the
// returned slice past the lifetime of buf.
func decodeValues[T Value](buf []byte) []T {
	if len(buf) == 0 {
		return nil
	}
	n := sizeOfT[T]()
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), len(buf)/n)
}

// decodeOne reinterprets the first sizeof(T) bytes of buf as a T.
func decodeOne[T Value](buf []byte) T {
	return *(*T)(unsafe.Pointer(&buf[0]))
}
