package config

// Persona is a DJ character used by the script generator and TTS.
type Persona struct {
	Name    string   `yaml:"name"`
	Bio     string   `yaml:"bio"`
	Traits  []string `yaml:"traits"`
	VoiceID string   `yaml:"voice_id"`
}

// GenerationConfig holds script generation tuning plus the data-driven prompt
// material: per-slot retrieval templates, word-count targets, forbidden-term
// sets, and DJ personas.
type GenerationConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`

	// FutureYearOffset shifts wall-clock time into the station's fictional
	// year for prompts and retrieval queries.
	FutureYearOffset int `yaml:"future_year_offset"`

	// ToneMinScore is the minimum acceptable tone-validator score.
	ToneMinScore int `yaml:"tone_min_score"`

	// WordTargets maps slot type to the target script word count.
	WordTargets map[string]int `yaml:"word_targets"`

	// SlotTemplates maps slot type to the time-aware retrieval query
	// template. Placeholders: {year} {month} {day}.
	SlotTemplates map[string]string `yaml:"slot_templates"`

	// ForbiddenTerms maps a flag name (dystopian, fantasy, anachronism) to
	// the keyword set the tone validator scans for.
	ForbiddenTerms map[string][]string `yaml:"forbidden_terms"`

	// Personas are the station's DJ characters, keyed by order; the first
	// persona hosts single-speaker slots.
	Personas []Persona `yaml:"personas"`
}

// DefaultWordTarget is used for slot types without an explicit target.
const DefaultWordTarget = 200

// WordTarget returns the word-count target for a slot type.
func (c *GenerationConfig) WordTarget(slotType string) int {
	if n, ok := c.WordTargets[slotType]; ok {
		return n
	}
	return DefaultWordTarget
}

// DefaultGenerationConfig returns the built-in generation defaults.
// station.yaml normally overrides the data sections.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		Model:            "claude-haiku-4-5-20251001",
		Temperature:      0.7,
		MaxTokens:        2000,
		FutureYearOffset: 500,
		ToneMinScore:     70,
		WordTargets: map[string]int{
			"news":       200,
			"culture":    300,
			"interview":  400,
			"station_id": 50,
			"weather":    150,
			"tech":       250,
		},
		SlotTemplates: map[string]string{
			"news":       "latest developments and breaking news around {year}-{month}-{day}",
			"culture":    "arts, music, and cultural life in the year {year}",
			"tech":       "technology and scientific advances as of {year}-{month}",
			"interview":  "notable figures and their work during {year}",
			"panel":      "debated questions and open controversies of {year}",
			"dialogue":   "everyday life and current affairs around {year}-{month}-{day}",
			"history":    "anniversaries and historical echoes of {month}-{day}",
			"weather":    "atmospheric conditions and climate in {year}",
			"station_id": "station identity",
		},
		ForbiddenTerms: map[string][]string{
			"dystopian":   {"wasteland", "apocalypse", "collapse of civilization", "ruins", "extinction"},
			"fantasy":     {"magic", "wizard", "dragon", "spell", "enchanted"},
			"anachronism": {"smartphone", "internet of old", "twentieth century", "facebook", "twitter"},
		},
		Personas: []Persona{
			{
				Name:    "Vega Lumen",
				Bio:     "Night-shift host of the Aether frequency, born under the Mars lights.",
				Traits:  []string{"warm", "wry", "curious"},
				VoiceID: "vega",
			},
			{
				Name:    "Castor Hale",
				Bio:     "Former orbital traffic controller turned morning voice.",
				Traits:  []string{"dry", "precise", "skeptical"},
				VoiceID: "castor",
			},
			{
				Name:    "Juniper Sol",
				Bio:     "Culture correspondent with a collection of pre-colony vinyl.",
				Traits:  []string{"enthusiastic", "tangential", "generous"},
				VoiceID: "juniper",
			},
		},
	}
}
