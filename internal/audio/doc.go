// Package audio holds immutable mono PCM-16 buffers, fixed-size window
// partitioning over them, and WAV encoding/decoding for the inference API.
package audio
