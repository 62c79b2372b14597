// Copyright 2024-2026 Aiku AI

// Package mcfmt converts chat-platform text into Minecraft text components.
package mcfmt

import (
	"encoding/json"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Color names accepted by Minecraft text components.
const (
	ColorNone        = ""
	ColorAqua        = "aqua"
	ColorBlue        = "blue"
	ColorDarkPurple  = "dark_purple"
	ColorGray        = "gray"
	ColorGreen       = "green"
	ColorRed         = "red"
	ColorYellow      = "yellow"
	ColorLightPurple = "light_purple"
)

// linkRe matches a markdown link [label](url).
var linkRe = regexp.MustCompile(`\[([^\[\]]+)\]\(([^()\s]+)\)`)

// Segment is one run of text with uniform styling. A non-empty URL makes the
// segment clickable.
type Segment struct {
	Text       string
	URL        string
	Hover      string
	Color      string
	Bold       bool
	Underlined bool
}

// IsLink reports whether the segment opens a URL when clicked.
func (s Segment) IsLink() bool {
	return s.URL != ""
}

// Message is an ordered list of segments.
type Message []Segment

// Plain returns the concatenated text of all segments.
func (m Message) Plain() string {
	var sb strings.Builder
	for _, seg := range m {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// IsEmpty reports whether the message has no visible text.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Plain()) == ""
}

// Text returns a single plain segment.
func Text(text string) Segment {
	return Segment{Text: text}
}

// Colored returns a single plain segment with a color.
func Colored(text, color string) Segment {
	return Segment{Text: text, Color: color}
}

// Parse splits text into plain segments and clickable link segments. Text
// outside links is kept verbatim and in order. Links with a scheme other than
// http or https are kept as plain text.
func Parse(text string) Message {
	matches := linkRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Message{Text(text)}
	}

	var msg Message
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		label := text[m[2]:m[3]]
		href := text[m[4]:m[5]]
		if !isSafeURL(href) {
			continue
		}
		if start > last {
			msg = append(msg, Text(text[last:start]))
		}
		msg = append(msg, Segment{
			Text:       label,
			URL:        href,
			Hover:      href,
			Color:      ColorBlue,
			Underlined: true,
		})
		last = end
	}
	if last < len(text) {
		msg = append(msg, Text(text[last:]))
	}
	if len(msg) == 0 {
		return Message{Text(text)}
	}
	return msg
}

func isSafeURL(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type clickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

type hoverEvent struct {
	Action   string `json:"action"`
	Contents string `json:"contents"`
}

type component struct {
	Text       string      `json:"text"`
	Color      string      `json:"color,omitempty"`
	Bold       bool        `json:"bold,omitempty"`
	Underlined bool        `json:"underlined,omitempty"`
	ClickEvent *clickEvent `json:"clickEvent,omitempty"`
	HoverEvent *hoverEvent `json:"hoverEvent,omitempty"`
}

// Tellraw encodes the message as a JSON text component array suitable for
// the tellraw command. The leading empty component stops styling of the
// first segment from leaking into the rest.
func (m Message) Tellraw() (string, error) {
	components := make([]component, 0, len(m)+1)
	components = append(components, component{Text: ""})
	for _, seg := range m {
		c := component{
			Text:       seg.Text,
			Color:      seg.Color,
			Bold:       seg.Bold,
			Underlined: seg.Underlined,
		}
		if seg.URL != "" {
			c.ClickEvent = &clickEvent{Action: "open_url", Value: seg.URL}
		}
		if seg.Hover != "" {
			c.HoverEvent = &hoverEvent{Action: "show_text", Contents: seg.Hover}
		}
		components = append(components, c)
	}
	data, err := json.Marshal(components)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Ellipsis marks text cut by TellrawWithin.
const Ellipsis = "..."

// TellrawWithin encodes the message like Tellraw but cuts text from the end,
// marking the cut with Ellipsis, until the encoding is at most limit bytes.
// A trailing segment is dropped when not even its ellipsis fits.
func (m Message) TellrawWithin(limit int) (string, error) {
	payload, err := m.Tellraw()
	if err != nil || len(payload) <= limit {
		return payload, err
	}
	msg := slices.Clone(m)
	for len(msg) > 0 {
		last := len(msg) - 1
		runes := []rune(msg[last].Text)
		encode := func(keep int) (string, error) {
			msg[last].Text = string(runes[:keep]) + Ellipsis
			return msg.Tellraw()
		}
		var encodeErr error
		// Encoded length grows with keep, so search for the first overflow.
		keep := sort.Search(len(runes)+1, func(keep int) bool {
			p, err := encode(keep)
			if err != nil {
				encodeErr = err
				return true
			}
			return len(p) > limit
		}) - 1
		if encodeErr != nil {
			return "", encodeErr
		}
		if keep > 0 || (keep == 0 && last == 0) {
			return encode(keep)
		}
		msg = msg[:last]
	}
	return msg.Tellraw()
}
