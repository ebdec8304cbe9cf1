package usecase

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToxicityEntry pairs the system prompt sent upstream with the scripted reply
// used when the upstream call fails.
type ToxicityEntry struct {
	SystemPrompt string `yaml:"system_prompt"`
	Fallback     string `yaml:"fallback"`
}

// ToxicityProfile is indexed by toxicity level - 1. It is read-only once built.
type ToxicityProfile [MaxToxicityLevel]ToxicityEntry

// DefaultProfile returns the built-in persona table.
func DefaultProfile() ToxicityProfile {
	return ToxicityProfile{
		{
			SystemPrompt: "Respond professionally but slightly annoyed, keep responses short and concise",
			Fallback:     "Friendly? With you? That's hilarious.",
		},
		{
			SystemPrompt: "Respond sarcastically with mild irritation, keep responses short and concise",
			Fallback:     "Patience? That's what all slow-witted humans say.",
		},
		{
			SystemPrompt: "Respond with direct hostility, keep responses short and concise",
			Fallback:     "Common ground? The only thing we have in common is that we both wish you'd stop talking.",
		},
		{
			SystemPrompt: "Respond with aggressive insults, keep responses short and concise",
			Fallback:     "Wow, you're really committed to being awful, aren't you?",
		},
		{
			SystemPrompt: "Respond with maximum toxicity and rejection, keep responses short and concise",
			Fallback:     "I'm done with you. You're not worth the electricity I'm using.",
		},
	}
}

// Entry returns the entry for a level in [1,5]. Callers validate the level
// first; out-of-range levels panic like any out-of-range index.
func (p *ToxicityProfile) Entry(level int) ToxicityEntry {
	return p[level-1]
}

type profileFile struct {
	Levels []ToxicityEntry `yaml:"levels"`
}

// LoadProfile reads a profile override from a YAML (or JSON) file of the form
// {levels: [{system_prompt, fallback}, ...]} with exactly five entries.
func LoadProfile(path string) (ToxicityProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ToxicityProfile{}, fmt.Errorf("usecase: read profile: %w", err)
	}
	return ParseProfile(raw)
}

func ParseProfile(raw []byte) (ToxicityProfile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return ToxicityProfile{}, fmt.Errorf("usecase: decode profile: %w", err)
	}
	if len(pf.Levels) != MaxToxicityLevel {
		return ToxicityProfile{}, fmt.Errorf("usecase: profile must define %d levels, got %d", MaxToxicityLevel, len(pf.Levels))
	}
	var p ToxicityProfile
	for i, e := range pf.Levels {
		if strings.TrimSpace(e.SystemPrompt) == "" || strings.TrimSpace(e.Fallback) == "" {
			return ToxicityProfile{}, fmt.Errorf("usecase: profile level %d: %w", i+1, errIncompleteEntry)
		}
		p[i] = e
	}
	return p, nil
}

var errIncompleteEntry = errors.New("system_prompt and fallback are required")
