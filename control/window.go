package control

// WindowSize is the number of samples averaged for the easing input.
const WindowSize = 4

// window holds the last WindowSize samples, most recent first.
type window struct {
	samples [WindowSize]float64
}

func newWindow(fill float64) *window {
	w := &window{}
	for i := range w.samples {
		w.samples[i] = fill
	}
	return w
}

// push shifts every sample one slot towards the tail, evicting the oldest.
func (w *window) push(v float64) {
	copy(w.samples[1:], w.samples[:WindowSize-1])
	w.samples[0] = v
}

// replaceHead overwrites the most recent sample.
func (w *window) replaceHead(v float64) {
	w.samples[0] = v
}

func (w *window) average() float64 {
	sum := 0.0
	for _, v := range w.samples {
		sum += v
	}
	return sum / WindowSize
}

func (w *window) snapshot() []float64 {
	out := make([]float64, WindowSize)
	copy(out, w.samples[:])
	return out
}
