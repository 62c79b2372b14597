// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package discordfmt renders game-side text as plain Discord message content.
package discordfmt

import (
	"regexp"
	"strings"
)

var (
	// Legacy section-sign formatting codes, e.g. §a or §l.
	sectionCodeRe = regexp.MustCompile(`§[0-9a-fk-orA-FK-OR]`)
	placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)
	mentionRe     = regexp.MustCompile(`@(everyone|here)`)
	markdownEsc   = strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"~", `\~`,
		"`", "\\`",
		"|", `\|`,
		">", `\>`,
	)
)

// Vars maps placeholder names (without braces) to values.
type Vars map[string]string

// Render substitutes {name} placeholders in template. Unknown placeholders are
// left untouched so typos stay visible.
func Render(template string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

// StripCodes removes Minecraft section-sign formatting codes.
func StripCodes(text string) string {
	return sectionCodeRe.ReplaceAllString(text, "")
}

// Plain converts game text to markup-free Discord content: formatting codes
// are stripped, markdown characters escaped and mass mentions neutralized.
func Plain(text string) string {
	text = StripCodes(text)
	text = markdownEsc.Replace(text)
	text = mentionRe.ReplaceAllString(text, "@\u200b$1")
	return strings.TrimSpace(text)
}

// Username renders a webhook username. Discord rejects empty usernames and
// names longer than 80 characters.
func Username(template string, vars Vars) string {
	name := strings.TrimSpace(StripCodes(Render(template, vars)))
	if name == "" {
		name = "Minecraft"
	}
	if r := []rune(name); len(r) > 80 {
		name = string(r[:80])
	}
	return name
}
