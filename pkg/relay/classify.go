// Copyright 2024-2026 Aiku AI

package relay

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	advancementKeywords = []string{"advancement", "goal", "challenge", "task"}

	// Indexed by EventKind.
	lifecycleKeywords = []string{"join", "leave", "death"}

	lifecycleSynonyms = map[string]string{
		"left":         "leave",
		"leaves":       "leave",
		"quit":         "leave",
		"disconnected": "leave",
		"died":         "death",
		"dead":         "death",
		"killed":       "death",
		"slain":        "death",
		"joins":        "join",
	}

	// Words that make up generic embed titles such as "Advancement Made" or
	// "Player Joined". A title made only of these carries no advancement name.
	boilerplateWords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "has": {}, "new": {}, "made": {}, "player": {},
		"advancement": {}, "advancements": {}, "achievement": {}, "achievements": {},
		"goal": {}, "goals": {}, "reached": {}, "challenge": {}, "challenges": {},
		"complete": {}, "completed": {}, "task": {}, "unlocked": {}, "earned": {},
		"get": {}, "got": {}, "joined": {}, "left": {}, "died": {}, "death": {},
		"join": {}, "leave": {}, "server": {}, "event": {}, "minecraft": {},
	}

	// Words that are never taken as a player name by the first-word heuristic.
	nameStopwords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "player": {}, "user": {}, "server": {},
		"minecraft": {}, "someone": {}, "new": {},
	}

	advancementSentenceRe = regexp.MustCompile(`(?i)^(\S+)\s+has\s+(?:just\s+)?(?:made|reached|completed|earned|unlocked|got)\s+the\s+(?:advancement|goal|challenge|achievement|task)\s+\[?(.+?)\]?[.!]?$`)
	lifecycleSentenceRe   = regexp.MustCompile(`(?i)^(\S+)\s+(?:has\s+)?(?:joined|left|quit|disconnected)\b`)
	playerNameRe          = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
	markdownNoise         = strings.NewReplacer("**", "", "__", "", "`", "", "~~", "", `\`, "")
)

// Classify assigns exactly one Payload kind to an envelope. Embeds posted by
// bots and webhooks, or tagged with ProductTag, are tested as advancements
// first, then as lifecycle events. Anything else falls through to plain text,
// and an envelope without usable text is Unclassified.
func Classify(env InboundEnvelope) Payload {
	if len(env.Embeds) > 0 && isStructuredSource(env) {
		embed := env.Embeds[0]
		if isAdvancementEmbed(embed) {
			return extractAdvancement(embed)
		}
		if kind, ok := lifecycleKind(embed); ok {
			return extractLifecycle(embed, kind)
		}
	}
	if strings.TrimSpace(env.Text) != "" {
		return Payload{Kind: PayloadPlainText, Text: env.Text}
	}
	if len(env.Embeds) > 0 {
		if text := embedText(env.Embeds[0]); text != "" {
			return Payload{Kind: PayloadPlainText, Text: text}
		}
	}
	return Payload{Kind: PayloadUnclassified}
}

// isStructuredSource reports whether the envelope may carry an event
// notification. Embeds on messages typed by people are link previews.
func isStructuredSource(env InboundEnvelope) bool {
	return env.IsWebhook || env.IsBot || strings.Contains(env.Embeds[0].FooterText, ProductTag)
}

func isAdvancementEmbed(e Embed) bool {
	return containsAny(strings.ToLower(e.FooterText), advancementKeywords) ||
		containsAny(strings.ToLower(e.Title), advancementKeywords)
}

func lifecycleKind(e Embed) (EventKind, bool) {
	for _, text := range []string{normalizeWords(e.FooterText), normalizeWords(e.Title)} {
		for i, kw := range lifecycleKeywords {
			if strings.Contains(text, kw) {
				return EventKind(i), true
			}
		}
	}
	return 0, false
}

func advancementKind(e Embed) AdvancementKind {
	text := strings.ToLower(e.FooterText + " " + e.Title)
	switch {
	case strings.Contains(text, "challenge"):
		return AdvancementChallenge
	case strings.Contains(text, "goal"):
		return AdvancementGoal
	default:
		return AdvancementNormal
	}
}

func extractAdvancement(e Embed) Payload {
	kind := advancementKind(e)
	titleMatch := advancementSentenceRe.FindStringSubmatch(clean(e.Title))
	descMatch := advancementSentenceRe.FindStringSubmatch(clean(e.Description))

	player := fieldValue(e, "player", "user", "name", "username")
	if player == "" && titleMatch != nil {
		player = titleMatch[1]
	}
	if player == "" && descMatch != nil {
		player = descMatch[1]
	}
	if player == "" {
		player = clean(e.AuthorName)
	}

	title := fieldValue(e, "title", "achievement", "advancement")
	if title == "" && titleMatch != nil {
		title = titleMatch[2]
	}
	if title == "" && titleMatch == nil && !isBoilerplateTitle(e.Title) {
		title = clean(e.Title)
	}
	if title == "" && descMatch != nil {
		title = descMatch[2]
	}

	description := fieldValue(e, "description", "desc", "details")
	if description == "" && descMatch == nil {
		description = clean(e.Description)
	}

	data, err := NewAdvancementData(player, title, description, kind)
	if err != nil {
		var extractErr *ExtractionError
		if !errors.As(err, &extractErr) {
			extractErr = &ExtractionError{Kind: "advancement", Missing: []string{err.Error()}}
		}
		embed := e
		return Payload{
			Kind:    PayloadAdvancement,
			Embed:   &embed,
			Err:     extractErr,
			partial: partialFields{player: player, title: title, advancementKind: kind},
		}
	}
	return Payload{Kind: PayloadAdvancement, Advancement: data}
}

func extractLifecycle(e Embed, kind EventKind) Payload {
	player := fieldValue(e, "player", "user", "name", "username")
	if player == "" {
		for _, text := range []string{e.Title, e.Description} {
			if m := lifecycleSentenceRe.FindStringSubmatch(clean(text)); m != nil && !isStopword(m[1]) {
				player = m[1]
				break
			}
		}
	}
	if player == "" {
		player = clean(e.AuthorName)
	}
	if player == "" {
		player = firstSignificantWord(e.Description)
	}

	var deathMessage string
	if kind == EventDeath {
		deathMessage = fieldValue(e, "death", "death message", "message", "cause")
		if deathMessage == "" {
			deathMessage = clean(e.Description)
		}
		if deathMessage == "" && !isBoilerplateTitle(e.Title) {
			deathMessage = clean(e.Title)
		}
	}

	if player == "" {
		embed := e
		return Payload{
			Kind:    PayloadLifecycle,
			Embed:   &embed,
			Err:     &ExtractionError{Kind: "lifecycle", Missing: []string{"player"}},
			partial: partialFields{eventKind: kind},
		}
	}
	return Payload{
		Kind:  PayloadLifecycle,
		Event: &EventData{Player: player, Kind: kind, DeathMessage: deathMessage},
	}
}

// fieldValue returns the first non-empty value of a field whose name matches
// one of names, case-insensitively.
func fieldValue(e Embed, names ...string) string {
	for _, want := range names {
		for _, f := range e.Fields {
			name := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(clean(f.Name), ":")))
			if name != want {
				continue
			}
			if v := clean(f.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

// firstSignificantWord guesses a player name from free text such as a death
// message, where the name usually comes first.
func firstSignificantWord(text string) string {
	for _, word := range strings.Fields(clean(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if word == "" || isStopword(word) {
			continue
		}
		if playerNameRe.MatchString(word) {
			return word
		}
		return ""
	}
	return ""
}

func isStopword(word string) bool {
	_, ok := nameStopwords[strings.ToLower(word)]
	return ok
}

func isBoilerplateTitle(title string) bool {
	if strings.Contains(title, ProductTag) {
		return true
	}
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if _, ok := boilerplateWords[w]; !ok {
			return false
		}
	}
	return true
}

// normalizeWords lowercases text, splits it into letter runs and maps
// lifecycle synonyms onto their keyword.
func normalizeWords(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for i, w := range words {
		if canon, ok := lifecycleSynonyms[w]; ok {
			words[i] = canon
		}
	}
	return strings.Join(words, " ")
}

func embedText(e Embed) string {
	title, desc := clean(e.Title), clean(e.Description)
	switch {
	case title != "" && desc != "":
		return title + ": " + desc
	case desc != "":
		return desc
	default:
		return title
	}
}

func clean(s string) string {
	return strings.TrimSpace(markdownNoise.Replace(s))
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
