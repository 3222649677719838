// Package checkpoint records how far an update run has progressed.
//
// The checkpoint is a plain-text file holding the id of the last row whose
// remote write was confirmed. It is replaced atomically on every save (temp
// file, fsync, rename, directory fsync) so a crash can never leave a torn id
// behind. The run treats the id as a position in the input file, not as a
// value to compare against.
package checkpoint
