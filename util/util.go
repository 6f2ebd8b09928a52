package util

import (
	"context"
	"fmt"
	"log/slog"
)

var Debug uint64 = 1

// DPrintf logs at debug level when level is within Debug.
func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		slog.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, a...),
			slog.Uint64("dlevel", level))
	}
}

// RoundUp returns the number of sz-sized units needed to hold n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

// AlignDown rounds n down to a multiple of sz.
func AlignDown(n uint64, sz uint64) uint64 {
	return n / sz * sz
}

// AlignUp rounds n up to a multiple of sz.
func AlignUp(n uint64, sz uint64) uint64 {
	return RoundUp(n, sz) * sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
