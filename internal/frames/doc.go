// Package frames enumerates the frame images of a target and reads and
// writes individual frames.
//
// Enumerate lists supported images in natural numeric order and assigns each
// its ordinal. A frame's identity within a job is its file name, so Pending
// can filter out frames a previous run already completed. Save and Copy write
// through a temporary file in the destination directory and rename it into
// place, keeping the destination's permission bits.
package frames
