package audio

// Window is a contiguous time slice [StartMS, EndMS) of a Buffer dispatched as one
// inference call.
type Window struct {
	Index   int   `json:"index"`
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// DurationMS returns the window length in milliseconds
func (w Window) DurationMS() int64 {
	return w.EndMS - w.StartMS
}

// OffsetSeconds returns the window start in seconds, the amount its predictions
// are shifted by when merged back into buffer coordinates.
func (w Window) OffsetSeconds() float64 {
	return float64(w.StartMS) / 1000.0
}

// Partition splits [0, durationMS) into consecutive windows of chunkMS, the last
// one truncated to the remainder. It returns ceil(durationMS/chunkMS) windows.
func Partition(durationMS, chunkMS int64) []Window {
	if durationMS <= 0 || chunkMS <= 0 {
		return nil
	}

	count := (durationMS + chunkMS - 1) / chunkMS
	windows := make([]Window, 0, count)

	for start := int64(0); start < durationMS; start += chunkMS {
		end := start + chunkMS
		if end > durationMS {
			end = durationMS
		}
		windows = append(windows, Window{
			Index:   len(windows),
			StartMS: start,
			EndMS:   end,
		})
	}

	return windows
}
