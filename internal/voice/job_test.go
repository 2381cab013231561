package voice

import (
	"testing"
	"time"

	"voxterm/internal/tracelog"
	"voxterm/internal/voxerr"
)

// drainJob polls until the job's terminal message arrives, returning every
// message seen, or fails the test on timeout.
func drainJob(t *testing.T, j *Job) []Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var got []Message
	for {
		select {
		case <-deadline:
			t.Fatalf("no terminal message before deadline; got %+v", got)
		default:
		}
		m := j.Poll()
		if m == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, *m)
		switch m.Kind {
		case MsgTranscript, MsgEmpty, MsgError:
			return got
		}
	}
}

func TestJobSilentCaptureEmitsExactlyOneTerminalMessage(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.MaxCaptureMs = 60
	cfg.FrameMs = 20

	var pushed func([]int16)
	j := Start(&fixedVAD{speech: false}, cfg, func(push func([]int16)) {
		pushed = push
	}, nil, nil, TranscribeParams{}, tracelog.Nop())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				pushed(make([]int16, 320))
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	defer close(stop)

	msgs := drainJob(t, j)

	if msgs[0].Kind != MsgStarted {
		t.Fatalf("first message = %v, want MsgStarted", msgs[0].Kind)
	}
	last := msgs[len(msgs)-1]
	if last.Kind != MsgEmpty {
		t.Fatalf("terminal message = %v, want MsgEmpty for a silent capture", last.Kind)
	}
	if last.Metrics.StopReason != StopSilence {
		t.Fatalf("stop reason = %v, want silence", last.Metrics.StopReason)
	}

	// No messages may follow the terminal one.
	time.Sleep(20 * time.Millisecond)
	if m := j.Poll(); m != nil {
		t.Fatalf("message after terminal: %+v", m)
	}
}

func TestJobSpeechWithoutTranscriberReportsFallbackUnavailable(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.FrameMs = 20
	cfg.SilenceTailMs = 20
	cfg.MinSpeechMsBeforeStt = 20
	cfg.MaxCaptureMs = 2000

	speaking := true
	j := Start(&toggleVAD{val: &speaking}, cfg, nil, nil, nil, TranscribeParams{}, tracelog.Nop())

	j.worker.PushFrame(make([]int16, 320))
	j.worker.PushFrame(make([]int16, 320))
	time.Sleep(10 * time.Millisecond)
	speaking = false
	for i := 0; i < 5; i++ {
		j.worker.PushFrame(make([]int16, 320))
		time.Sleep(10 * time.Millisecond)
	}

	msgs := drainJob(t, j)
	last := msgs[len(msgs)-1]
	if last.Kind != MsgError {
		t.Fatalf("terminal message = %v, want MsgError with no STT path configured", last.Kind)
	}
	if last.ErrKind != voxerr.KindFallbackUnavailable {
		t.Fatalf("ErrKind = %v, want %v", last.ErrKind, voxerr.KindFallbackUnavailable)
	}
}

func TestJobManualStopBeforeSpeechIsEmpty(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.MaxCaptureMs = 5000

	j := Start(&fixedVAD{speech: false}, cfg, nil, nil, nil, TranscribeParams{}, tracelog.Nop())
	j.Stop()
	j.Stop() // idempotent

	msgs := drainJob(t, j)
	if last := msgs[len(msgs)-1]; last.Kind != MsgEmpty {
		t.Fatalf("terminal message = %v, want MsgEmpty", last.Kind)
	}
}
