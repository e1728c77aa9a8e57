package window

import "strings"

// Profile identifies a model family with a known context capacity.
type Profile string

// Supported model profiles.
const (
	ProfileClaude  Profile = "claude"
	ProfileGPT4    Profile = "gpt4"
	ProfileGPT35   Profile = "gpt35"
	ProfileGemini  Profile = "gemini"
	ProfileLlama   Profile = "llama"
	ProfileDefault Profile = "default"
)

const defaultMaxTokens = 128_000

// MaxTokens returns the context capacity for the profile. Unknown values
// get the default capacity, so the result is always positive.
func (p Profile) MaxTokens() int {
	switch p {
	case ProfileClaude:
		return 200_000
	case ProfileGPT4:
		return 128_000
	case ProfileGPT35:
		return 16_384
	case ProfileGemini:
		return 1_048_576
	case ProfileLlama:
		return 8_192
	}
	return defaultMaxTokens
}

// ResolveProfile maps a model selector to a profile. Matching is by
// family prefix after lowercasing, so "claude-sonnet-4" and "Claude"
// both resolve to ProfileClaude. Unknown or empty selectors resolve to
// ProfileDefault.
func ResolveProfile(model string) Profile {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "" || m == "default":
		return ProfileDefault
	case strings.HasPrefix(m, "claude"):
		return ProfileClaude
	case strings.HasPrefix(m, "gpt-4") || strings.HasPrefix(m, "gpt4") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3"):
		return ProfileGPT4
	case strings.HasPrefix(m, "gpt-3") || strings.HasPrefix(m, "gpt3"):
		return ProfileGPT35
	case strings.HasPrefix(m, "gemini"):
		return ProfileGemini
	case strings.HasPrefix(m, "llama"):
		return ProfileLlama
	}
	return ProfileDefault
}

// KnownModel reports whether the selector names a supported family.
// Empty and "default" count as known. Config validation uses this to
// catch typos before ResolveProfile silently falls back.
func KnownModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" || m == "default" {
		return true
	}
	return ResolveProfile(model) != ProfileDefault
}
