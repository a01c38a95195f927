package probez

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid returns the id of the calling goroutine, or 0 if it cannot be parsed.
// Stack format: "goroutine 123 [running]:\n..."
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	id, _ := parseGoroutineHeader(buf[:n])
	return id
}

var goroutinePrefix = []byte("goroutine ")

// parseGoroutineHeader parses the id out of one "goroutine N [" line.
func parseGoroutineHeader(b []byte) (uint64, bool) {
	if !bytes.HasPrefix(b, goroutinePrefix) {
		return 0, false
	}
	b = b[len(goroutinePrefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// liveGoroutines returns the ids of all goroutines alive at the call.
func liveGoroutines() map[uint64]struct{} {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	return parseGoroutineIDs(buf)
}

func parseGoroutineIDs(dump []byte) map[uint64]struct{} {
	live := make(map[uint64]struct{})
	for len(dump) > 0 {
		line := dump
		if i := bytes.IndexByte(dump, '\n'); i >= 0 {
			line, dump = dump[:i], dump[i+1:]
		} else {
			dump = nil
		}
		if id, ok := parseGoroutineHeader(line); ok {
			live[id] = struct{}{}
		}
	}
	return live
}
