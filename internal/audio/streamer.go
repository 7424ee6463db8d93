package audio

import (
	"sync/atomic"
)

// channelStreamer feeds decoded samples to the speaker without ever blocking
// its mutex. An empty channel yields silence, so a download stall pauses the
// sound instead of the audio pipeline. The stream ends once the decoder closes
// the channel and it has been drained.
type channelStreamer struct {
	samples <-chan [2]float64
	played  *atomic.Int64
	done    bool
}

func (s *channelStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.done {
		return 0, false
	}

	audioEnd := 0
fill:
	for audioEnd < len(samples) {
		select {
		case sample, more := <-s.samples:
			if !more {
				s.done = true
				break fill
			}
			samples[audioEnd] = sample
			audioEnd++
		default:
			break fill
		}
	}

	s.played.Add(int64(audioEnd))

	if s.done {
		return audioEnd, audioEnd > 0
	}

	for i := audioEnd; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (s *channelStreamer) Err() error {
	return nil
}
