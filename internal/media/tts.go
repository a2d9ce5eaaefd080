// Package media turns generated scripts into narrated videos and publishes them.
package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

// Synthesizer renders text to an MP3 file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}

type VoiceConfig struct {
	LanguageCode string
	Voice        string
	SpeakingRate float64
}

// GoogleTTS uses Google Cloud Text-to-Speech.
type GoogleTTS struct {
	client *texttospeech.Client
	voice  VoiceConfig
}

// NewGoogleTTS authenticates with credentialsFile, or with application default
// credentials when it is empty.
func NewGoogleTTS(ctx context.Context, credentialsFile string, voice VoiceConfig) (*GoogleTTS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	if voice.SpeakingRate <= 0 {
		voice.SpeakingRate = 1
	}
	return &GoogleTTS{client: client, voice: voice}, nil
}

func (g *GoogleTTS) Close() error {
	return g.client.Close()
}

// maxRequestBytes stays below the API's 5000 byte input limit.
const maxRequestBytes = 4500

// Synthesize splits long scripts at paragraph or sentence ends and joins the MP3
// segments, which concatenate as valid MP3.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, outPath string) error {
	var audio []byte
	for _, chunk := range splitText(text, maxRequestBytes) {
		part, err := g.synthesize(ctx, chunk)
		if err != nil {
			return err
		}
		audio = append(audio, part...)
	}
	if len(audio) == 0 {
		return fmt.Errorf("synthesize speech: empty audio")
	}
	return os.WriteFile(outPath, audio, 0o644)
}

func (g *GoogleTTS) synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.voice.LanguageCode,
			Name:         g.voice.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  g.voice.SpeakingRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return resp.AudioContent, nil
}

// splitText cuts text into pieces of at most limit bytes, preferring paragraph,
// then sentence, then word boundaries.
func splitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var chunks []string
	for len(text) > limit {
		cut := -1
		for _, sep := range []string{"\n\n", "\n", ". ", " "} {
			if i := strings.LastIndex(text[:limit], sep); i > limit/4 {
				cut = i + len(sep)
				break
			}
		}
		if cut < 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
