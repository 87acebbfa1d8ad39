package format

// AlignWord returns n aligned up to the next word boundary.
//
// Example:
//
//	AlignWord(1)  = 8
//	AlignWord(8)  = 8
//	AlignWord(9)  = 16
func AlignWord(n int) int {
	return (n + WordAlignmentMask) & ^WordAlignmentMask
}

// WordsFor returns the number of words needed to hold n bytes.
func WordsFor(n int) int {
	return AlignWord(n) / WordSize
}

// WordOffset returns the byte offset of the word at index w.
func WordOffset(w uint32) int {
	return int(w) * WordSize
}
