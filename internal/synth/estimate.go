package synth

import "strconv"

// charsPerSecond is an average narration speed (about 150 words a minute).
const charsPerSecond = 15

// EstimateMedia guesses output size and duration from the request size.
// Used when the service does not report media metadata itself.
func EstimateMedia(chars int64, format, sampleRate string) (sizeBytes, durationSeconds int64) {
	durationSeconds = (chars + charsPerSecond - 1) / charsPerSecond
	if durationSeconds < 1 {
		durationSeconds = 1
	}

	switch format {
	case "pcm":
		rate, err := strconv.ParseInt(sampleRate, 10, 64)
		if err != nil || rate <= 0 {
			rate = 16000
		}
		// 16-bit mono
		sizeBytes = durationSeconds * rate * 2
	case "ogg_vorbis":
		sizeBytes = durationSeconds * 5000
	default:
		// 48 kbps mp3
		sizeBytes = durationSeconds * 6000
	}
	return sizeBytes, durationSeconds
}

// Media returns the task's size and duration, estimating what the service
// left out.
func (t Task) Media() (sizeBytes, durationSeconds int64) {
	estSize, estDuration := EstimateMedia(t.RequestCharacters, t.OutputFormat, t.SampleRate)
	sizeBytes, durationSeconds = t.OutputBytes, t.DurationSeconds
	if sizeBytes <= 0 {
		sizeBytes = estSize
	}
	if durationSeconds <= 0 {
		durationSeconds = estDuration
	}
	return sizeBytes, durationSeconds
}
