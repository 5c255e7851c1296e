package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// maxSpeechInput is the largest text the synthesis endpoint accepts.
const maxSpeechInput = 4096

// Transcribe converts audio to text. filename carries the container hint
// (e.g. voice.ogg) the API uses to detect the format.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	var text string
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    p.config.Speech.TranscriptionModel,
			FilePath: filename,
			Reader:   bytes.NewReader(audio),
		})
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Synthesize converts text to OGG/Opus audio suitable for a voice message.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}
	if r := []rune(text); len(r) > maxSpeechInput {
		text = string(r[:maxSpeechInput])
	}

	var audio []byte
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(p.config.Speech.SynthesisModel),
			Input:          text,
			Voice:          openai.SpeechVoice(p.config.Speech.Voice),
			ResponseFormat: openai.SpeechResponseFormatOpus,
		})
		if err != nil {
			return err
		}
		defer resp.Close()
		data, err := io.ReadAll(resp)
		if err != nil {
			return err
		}
		audio = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty speech response")
	}
	return audio, nil
}
