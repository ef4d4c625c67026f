package lumos

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-lumos/internal/config"
	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/speech"
	"github.com/teslashibe/go-lumos/pkg/tts"
)

func (a *App) initSpeech() error {
	sc := a.cfg.Speech
	if sc.Provider == config.ProviderNone {
		a.logger.Info("speech output disabled")
		return nil
	}

	provider, err := newProvider(sc, a.opts.Mock, a)
	if err != nil {
		return err
	}

	out := sc.Output
	if a.opts.Mock && out.Backend == audioio.BackendAuto {
		out.Backend = audioio.BackendMock
	}
	sink, err := audioio.NewSink(out, a.logger)
	if err != nil {
		provider.Close()
		return fmt.Errorf("audio output: %w", err)
	}

	speaker, err := speech.New(provider, sink,
		speech.WithQueueSize(sc.QueueSize),
		speech.WithLogger(a.logger),
	)
	if err != nil {
		provider.Close()
		return fmt.Errorf("speaker: %w", err)
	}

	a.provider = provider
	a.speaker = speaker
	return nil
}

// newProvider builds the configured TTS provider. The output encoding
// follows the sink rate so playback needs no resampling when possible.
func newProvider(sc config.SpeechConfig, mock bool, a *App) (tts.Provider, error) {
	if mock || sc.Provider == config.ProviderMock {
		return tts.NewMock(), nil
	}

	common := []tts.Option{tts.WithTimeout(sc.Timeout), tts.WithLogger(a.logger)}

	elevenLabs := func() (tts.Provider, error) {
		return tts.NewElevenLabs(append(common,
			tts.WithAPIKey(sc.ElevenLabsKey),
			tts.WithVoice(tts.ResolveElevenLabsVoice(sc.Voice)),
			tts.WithModel(sc.Model),
			tts.WithOutputFormat(encodingFor(sc.Output.SampleRate)),
		)...)
	}
	openAI := func() (tts.Provider, error) {
		return tts.NewOpenAI(append(common,
			tts.WithAPIKey(sc.OpenAIKey),
			tts.WithVoice(sc.OpenAIVoice),
		)...)
	}

	switch sc.Provider {
	case config.ProviderElevenLabs:
		return elevenLabs()
	case config.ProviderOpenAI:
		return openAI()
	case config.ProviderChain:
		var providers []tts.Provider
		var errs []error
		for _, build := range []func() (tts.Provider, error){elevenLabs, openAI} {
			p, err := build()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			providers = append(providers, p)
		}
		if len(providers) == 0 {
			return nil, errors.Join(errs...)
		}
		return tts.NewChain(a.logger, providers...)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", sc.Provider)
	}
}

// encodingFor picks the ElevenLabs PCM format matching rate.
func encodingFor(rate int) tts.Encoding {
	switch rate {
	case 22050:
		return tts.EncodingPCM22
	case 24000:
		return tts.EncodingPCM24
	case 44100:
		return tts.EncodingPCM44
	default:
		return tts.EncodingPCM16
	}
}
