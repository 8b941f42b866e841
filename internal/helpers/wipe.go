package helpers

// Wipe zeroes every buffer.
func Wipe(buffers ...[]byte) {
	for _, b := range buffers {
		clear(b)
	}
}
