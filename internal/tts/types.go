// Package tts provides an HTTP client for the Zalo AI text-to-speech API.
package tts

// Zalo AI voices. Northern and southern variants differ in accent.
const (
	SpeakerSouthernFemale = 1
	SpeakerNorthernFemale = 2
	SpeakerSouthernMale   = 3
	SpeakerNorthernMale   = 4
)

// MaxInputRunes is the longest text accepted by a single synthesis call.
const MaxInputRunes = 2000

// SynthesizeOptions contains optional parameters for speech synthesis.
type SynthesizeOptions struct {
	SpeakerID int     // Voice to use (default: SpeakerSouthernFemale)
	Speed     float64 // Speaking rate between 0.8 and 1.2 (default: 1.0)
}

// DefaultSynthesizeOptions returns the default synthesis options.
func DefaultSynthesizeOptions() SynthesizeOptions {
	return SynthesizeOptions{
		SpeakerID: SpeakerSouthernFemale,
		Speed:     1.0,
	}
}

// synthesizeResponse represents the response from /v1/tts/synthesize.
type synthesizeResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Data         struct {
		URL string `json:"url"`
	} `json:"data"`
}
