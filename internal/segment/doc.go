// Package segment reads and writes backup logs stored as a concatenation of
// independently gzip-compressed chunks.
//
// A chunk is one complete gzip member. Chunk boundaries are not recorded
// anywhere; the only way to find the next chunk is to decode the current one
// to its trailer. Reader tracks the exact byte offset of each member so the
// offsets can be stored in the index and used later to jump straight to a
// single chunk with NewReaderAt.
//
//	r := segment.NewReader(f)
//	for !r.EOF() {
//		if err := r.BeginChunk(); err != nil { ... }
//		io.Copy(dst, r)           // decompressed bytes of this chunk only
//		n, err := r.EndChunk()    // compressed length, trailer verified
//	}
//
// Writer is the mirror image: each BeginChunk/EndChunk pair produces one
// member, and Flush makes everything written so far recoverable even if the
// member is never finished.
package segment
