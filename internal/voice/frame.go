package voice

// Frame is a fixed-duration slice of mono PCM at the pipeline sample rate,
// carrying a monotonic sequence number.
type Frame struct {
	Seq     uint64
	Samples []int16
}

// CaptureBuffer concatenates Frame payloads into one contiguous PCM
// buffer, trimming the oldest samples first once MaxSamples is exceeded.
type CaptureBuffer struct {
	MaxSamples int
	samples    []int16
}

// NewCaptureBuffer creates a buffer bounded to maxDurationMs at sampleRate.
func NewCaptureBuffer(sampleRate, maxDurationMs int) *CaptureBuffer {
	return &CaptureBuffer{MaxSamples: sampleRate * maxDurationMs / 1000}
}

// Append adds samples, trimming the oldest ones first if over budget.
func (b *CaptureBuffer) Append(samples []int16) {
	b.samples = append(b.samples, samples...)
	if b.MaxSamples > 0 && len(b.samples) > b.MaxSamples {
		excess := len(b.samples) - b.MaxSamples
		b.samples = b.samples[excess:]
	}
}

// Len returns the number of samples currently buffered.
func (b *CaptureBuffer) Len() int { return len(b.samples) }

// Samples returns the buffered PCM.
func (b *CaptureBuffer) Samples() []int16 { return b.samples }
