package util

import "log"

// Debug is the verbosity of DPrintf. Level 1 covers lifecycle events, 3
// individual operations and 5 individual journal records.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

// SumOverflows reports whether n+m wraps around a uint64.
func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
