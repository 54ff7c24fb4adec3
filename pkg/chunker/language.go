package chunker

import (
	"sync"

	"github.com/pemistahl/lingua-go"
)

// DefaultLang is assumed for short or undetermined inputs.
const DefaultLang = "en"

// minDetectableLen is the input length below which detection is skipped.
const minDetectableLen = 100

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// supported maps detector results onto the station's supported language set.
var supported = map[lingua.Language]string{
	lingua.English: "en",
	lingua.Spanish: "es",
	lingua.Chinese: "zh",
}

// DetectLanguage runs statistical language detection restricted to the
// supported set (en, es, zh). Inputs shorter than 100 characters and
// undetermined results default to English. Confidence is a simple length
// heuristic capped at 0.95.
func DetectLanguage(text string) (lang string, confidence float64) {
	confidence = float64(len(text)) / 1000.0
	if confidence > 0.95 {
		confidence = 0.95
	}

	if len(text) < minDetectableLen {
		return DefaultLang, confidence
	}

	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.English, lingua.Spanish, lingua.Chinese).
			Build()
	})

	detected, ok := detector.DetectLanguageOf(text)
	if !ok {
		return DefaultLang, confidence
	}
	code, ok := supported[detected]
	if !ok {
		return DefaultLang, confidence
	}
	return code, confidence
}
