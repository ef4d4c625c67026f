package tts

// ElevenLabsVoices maps preset names to ElevenLabs voice IDs.
var ElevenLabsVoices = map[string]string{
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm
	"aria":      "9BWtsMINqrJLrRacOk9x", // American female, expressive
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
	"josh":      "TxGEqnHWrfWFTfGW9XjX", // American male, deep
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
}

// DefaultElevenLabsVoice is the default preset. A calm voice suits repeated
// short announcements.
const DefaultElevenLabsVoice = "rachel"

// ResolveElevenLabsVoice returns the voice ID for a preset name, or name
// unchanged when it is already an ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[name]; ok {
		return id
	}
	return name
}
