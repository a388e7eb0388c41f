// Package tts synthesizes spoken guidance.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer provider.Close()
//
//	audio, _ := provider.Synthesize(ctx, "person on the left, move to the center or right.")
package tts

import "context"

// Provider turns text into audio.
type Provider interface {
	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string) (*Audio, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Audio is one synthesized utterance.
type Audio struct {
	// Data is the encoded audio.
	Data []byte

	// Encoding is the format of Data.
	Encoding Encoding

	// CharCount is the length of the synthesized text, for usage tracking.
	CharCount int

	// LatencyMs is the time from request to complete audio.
	LatencyMs int64
}

// Encoding names the audio container or sample format.
type Encoding string

const (
	// EncodingMP3 is MPEG layer 3, the OpenAI default.
	EncodingMP3 Encoding = "mp3"

	// EncodingWAV is PCM in a WAV container.
	EncodingWAV Encoding = "wav"

	// EncodingOpus is Opus in an Ogg container.
	EncodingOpus Encoding = "opus"

	// EncodingPCM24 is raw 24kHz mono PCM16.
	EncodingPCM24 Encoding = "pcm"
)

// ContentType returns the MIME type for e.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingMP3:
		return "audio/mpeg"
	case EncodingWAV:
		return "audio/wav"
	case EncodingOpus:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
