// Package blob implements the content-addressed download cache.
//
// A source archive is stored under its expected signature:
//
//	<root>/<sig[0:2]>/<sig[2:4]>/<sig><ext>
//
// so two recipes pointing at the same archive share one file, and a
// changed URL with an unchanged signature is still a cache hit. Every
// fetch, cached or fresh, is verified against the signature. A mismatch
// deletes the file before SIGNATURE_MISMATCH is returned, so the next run
// downloads again instead of failing on the same corrupt file.
//
// Downloads go to a temporary file in the target directory and are renamed
// into place once complete, so an interrupted transfer never looks cached.
package blob
