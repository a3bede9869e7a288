// Package analysis implements the chunked analysis windower.
//
// Audio no longer than the inference limit is submitted in a single call. Longer
// audio is partitioned into contiguous fixed-length windows, each submitted as
// its own WAV file. Successful windows have their prediction time ranges shifted
// into the coordinate space of the original recording and are merged in window
// order. Failed windows are logged and skipped, so a result is successful as
// long as at least one window produced predictions.
//
// Text analysis goes through the same collaborator using the language model.
package analysis
