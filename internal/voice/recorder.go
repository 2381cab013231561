package voice

import (
	"sync"

	"github.com/gen2brain/malgo"

	"voxterm/internal/voxerr"
)

// PipelineSampleRate is the mono rate all frames are normalized to before
// reaching the VAD/Capture Worker (voice_vad_frame_ms is computed against
// this rate).
const PipelineSampleRate = 16000

// Recorder owns the OS audio input stream, downmixing and resampling
// every device callback to mono PipelineSampleRate int16 frames delivered
// to onFrame. Capture-only; this program never synthesizes audio.
type Recorder struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu       sync.Mutex
	deviceSR int
	channels int

	onFrame func(samples []int16)
}

// NewRecorder opens the named input device (empty string selects the
// system default), querying its native sample rate and channel count so
// onSamples can downmix/resample from what the hardware actually delivers
// rather than from a rate this package merely wished for.
func NewRecorder(deviceName string, onFrame func(samples []int16)) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, voxerr.New(voxerr.KindAudioDeviceUnavailable, "Microphone unavailable", err)
	}

	r := &Recorder{ctx: ctx, onFrame: onFrame}

	var devID *malgo.DeviceID
	if deviceName != "" {
		if id, ok := findCaptureDeviceID(ctx.Context, deviceName); ok {
			devID = &id
		}
	}
	nativeSR, nativeCh := nativeCaptureFormat(ctx.Context, devID)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = nativeCh
	deviceConfig.SampleRate = nativeSR
	deviceConfig.Alsa.NoMMap = 1

	if devID != nil {
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: r.onSamples,
	})
	if err != nil {
		ctx.Uninit()
		return nil, voxerr.New(voxerr.KindAudioDeviceUnavailable, "Microphone unavailable", err)
	}
	r.device = device
	r.deviceSR = int(nativeSR)
	r.channels = int(nativeCh)
	return r, nil
}

// nativeCaptureFormat queries the device's own reported sample rate and
// channel count (falling back to a safe default if the device exposes no
// usable range), so the capture stream is opened at the hardware's native
// format instead of silently asking miniaudio to do the conversion itself.
// id nil selects whichever device ctx.Devices reports as the default.
func nativeCaptureFormat(ctx *malgo.Context, id *malgo.DeviceID) (sampleRate, channels uint32) {
	const (
		fallbackSampleRate = 48000
		fallbackChannels   = 1
	)
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil || len(infos) == 0 {
		return fallbackSampleRate, fallbackChannels
	}
	var match *malgo.DeviceInfo
	for i := range infos {
		info := &infos[i]
		if id != nil {
			if info.ID == *id {
				match = info
				break
			}
			continue
		}
		if info.IsDefault != 0 {
			match = info
			break
		}
	}
	if match == nil {
		match = &infos[0]
	}
	sampleRate, channels = match.MaxSampleRate, match.MaxChannels
	if sampleRate == 0 {
		sampleRate = fallbackSampleRate
	}
	if channels == 0 {
		channels = fallbackChannels
	}
	return sampleRate, channels
}

func (r *Recorder) onSamples(_, input []byte, frameCount uint32) {
	if len(input) == 0 {
		return
	}
	samples := bytesToInt16(input)

	r.mu.Lock()
	sr, ch, sink := r.deviceSR, r.channels, r.onFrame
	r.mu.Unlock()

	mono := downmix(samples, ch)
	if sr != PipelineSampleRate {
		mono = resample(mono, sr, PipelineSampleRate)
	}
	if sink != nil {
		sink(mono)
	}
}

// SetSink swaps the frame callback invoked from the device's audio thread.
// The orchestrator owns one persistent Recorder for the process lifetime
// and redirects frames to whichever voice job's worker is currently
// capturing; passing nil silences the stream between captures without
// stopping the device.
func (r *Recorder) SetSink(onFrame func(samples []int16)) {
	r.mu.Lock()
	r.onFrame = onFrame
	r.mu.Unlock()
}

// Start begins the capture stream.
func (r *Recorder) Start() error {
	if err := r.device.Start(); err != nil {
		return voxerr.New(voxerr.KindAudioStreamError, "Voice capture failed to start (see log)", err)
	}
	return nil
}

// Close pauses the stream before releasing device and context resources,
// avoiding dangling callbacks per the "always pause before release" rule.
func (r *Recorder) Close() {
	if r.device != nil {
		r.device.Stop()
		r.device.Uninit()
	}
	if r.ctx != nil {
		r.ctx.Uninit()
	}
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

// findCaptureDeviceID looks up a capture device by display name.
func findCaptureDeviceID(ctx *malgo.Context, name string) (malgo.DeviceID, bool) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, false
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}

// ListCaptureDevices returns the display names of available input
// devices, for the `doctor`/`devices` CLI surface.
func ListCaptureDevices() ([]string, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, voxerr.New(voxerr.KindAudioDeviceUnavailable, "Cannot enumerate audio devices", err)
	}
	defer ctx.Uninit()

	infos, err := ctx.Context.Devices(malgo.Capture)
	if err != nil {
		return nil, voxerr.New(voxerr.KindAudioDeviceUnavailable, "Cannot enumerate audio devices", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}
