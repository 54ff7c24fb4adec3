package scriptgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aetherfm/station/pkg/config"
)

// buildSystemPrompt assembles the single-speaker system prompt: character
// role, traits, in-universe time, tone rules, forbidden terms, word target.
func buildSystemPrompt(cfg *config.GenerationConfig, sc Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, a radio DJ. %s\n", sc.DJ.Name, sc.DJ.Bio)
	if sc.ProgramName != "" {
		fmt.Fprintf(&b, "You are hosting the programme %q.\n", sc.ProgramName)
	}
	if len(sc.DJ.Traits) > 0 {
		fmt.Fprintf(&b, "Personality traits: %s.\n", strings.Join(sc.DJ.Traits, ", "))
	}

	fmt.Fprintf(&b, "The current in-universe date is %s, in the year %d. Never reference present-day dates.\n",
		sc.ReferenceTime.Format("January 2"), sc.FutureYear)

	b.WriteString("Tone balance: roughly 60% informative, 30% entertaining, 10% personal asides.\n")
	writeForbiddenTerms(&b, cfg.ForbiddenTerms)

	target := cfg.WordTarget(string(sc.SlotType))
	fmt.Fprintf(&b, "Write a %s segment of about %d words. Plain spoken prose only: no headings, no scene directions, no stage markers.\n",
		sc.SlotType, target)

	return b.String()
}

// buildUserPrompt lists the retrieved chunks, each prefixed with its source
// tag, and asks the model to cite with that exact form.
func buildUserPrompt(sc Context) string {
	var b strings.Builder

	if sc.PreviousSummary != "" {
		fmt.Fprintf(&b, "Previously on air: %s\n\n", sc.PreviousSummary)
	}

	if len(sc.Chunks) > 0 {
		b.WriteString("Source material:\n\n")
		for _, ch := range sc.Chunks {
			fmt.Fprintf(&b, "[SOURCE: %s:%s]\n%s\n\n", ch.SourceType, ch.SourceID, ch.ChunkText)
		}
		b.WriteString("When you draw on a source, cite it inline using its exact [SOURCE: ...] tag.\n")
	}

	b.WriteString("Write the segment now.")
	return b.String()
}

// buildConversationSystemPrompt assembles the dialogue system prompt for the
// requested format.
func buildConversationSystemPrompt(cfg *config.GenerationConfig, req ConversationRequest) string {
	var b strings.Builder

	switch req.Format {
	case "interview":
		fmt.Fprintf(&b, "You are writing a radio interview. %s is the host asking questions; the guests answer from their own perspective.\n", req.Host.Name)
	case "panel":
		fmt.Fprintf(&b, "You are writing a radio panel discussion moderated by %s. Panelists build on and push back against each other.\n", req.Host.Name)
	case "debate":
		fmt.Fprintf(&b, "You are writing a radio debate chaired by %s. Participants take opposing positions and argue them.\n", req.Host.Name)
	default: // dialogue
		fmt.Fprintf(&b, "You are writing a casual on-air conversation led by %s.\n", req.Host.Name)
	}

	b.WriteString("Speakers:\n")
	writePersona(&b, req.Host)
	for _, p := range req.Participants {
		writePersona(&b, p)
	}

	fmt.Fprintf(&b, "The conversation takes place in the year %d.\n", req.FutureYear)
	if req.Tone != "" {
		fmt.Fprintf(&b, "Overall tone: %s.\n", req.Tone)
	}
	writeForbiddenTerms(&b, cfg.ForbiddenTerms)

	b.WriteString("Format every line as SPEAKER: utterance, with the speaker name in capitals followed by a colon. No narration, no stage directions, at least eight exchanges.\n")
	return b.String()
}

func buildConversationUserPrompt(req ConversationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Duration != "" {
		fmt.Fprintf(&b, "Length: a %s conversation.\n", req.Duration)
	}

	if len(req.RetrievedContext) > 0 {
		b.WriteString("\nBackground material:\n\n")
		for _, ch := range req.RetrievedContext {
			fmt.Fprintf(&b, "[SOURCE: %s:%s]\n%s\n\n", ch.SourceType, ch.SourceID, ch.ChunkText)
		}
	}

	b.WriteString("Write the conversation now.")
	return b.String()
}

func writePersona(b *strings.Builder, p config.Persona) {
	fmt.Fprintf(b, "- %s: %s", p.Name, p.Bio)
	if len(p.Traits) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(p.Traits, ", "))
	}
	b.WriteString("\n")
}

// writeForbiddenTerms enumerates the forbidden keyword sets in stable order.
func writeForbiddenTerms(b *strings.Builder, terms map[string][]string) {
	if len(terms) == 0 {
		return
	}
	flags := make([]string, 0, len(terms))
	for flag := range terms {
		flags = append(flags, flag)
	}
	sort.Strings(flags)

	b.WriteString("Strictly avoid the following:\n")
	for _, flag := range flags {
		fmt.Fprintf(b, "- %s themes: %s\n", flag, strings.Join(terms[flag], ", "))
	}
}
