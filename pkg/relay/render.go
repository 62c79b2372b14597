// Copyright 2024-2026 Aiku AI

package relay

import (
	"strings"

	"github.com/aiku/mcrelay/pkg/relay/discordfmt"
	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

const messagePlaceholder = "{message}"

// RenderInbound builds the in-game message for a classified payload. Chat
// text goes through the inbound_chat template (or inbound_linked_chat for
// linked authors); structured events are rendered as sentences inside the
// inbound_event template. The result is never empty for a classified payload.
func RenderInbound(cfg *Config, env *InboundEnvelope, p *Payload, linked bool) mcfmt.Message {
	vars := discordfmt.Vars{
		"username": discordfmt.StripCodes(env.AuthorDisplayName),
		"author":   discordfmt.StripCodes(env.AuthorDisplayName),
		"prefix":   cfg.ServerPrefix,
		"server":   cfg.ServerName,
	}
	switch {
	case p.Kind == PayloadPlainText:
		template := cfg.Formats.InboundChat
		if linked {
			template = cfg.Formats.InboundLinkedChat
		}
		return applyTemplate(template, vars, mcfmt.Parse(discordfmt.StripCodes(p.Text)))
	case p.Err != nil:
		return applyTemplate(cfg.Formats.InboundEvent, vars, fallbackSentence(env, p))
	case p.Kind == PayloadAdvancement && p.Advancement != nil:
		return applyTemplate(cfg.Formats.InboundEvent, vars, advancementSentence(p.Advancement))
	case p.Kind == PayloadLifecycle && p.Event != nil:
		return applyTemplate(cfg.Formats.InboundEvent, vars, lifecycleSentence(p.Event))
	default:
		return nil
	}
}

// applyTemplate renders template with vars and splices body in place of
// {message}. A template without {message} gets the body appended.
func applyTemplate(template string, vars discordfmt.Vars, body mcfmt.Message) mcfmt.Message {
	before, after, found := strings.Cut(template, messagePlaceholder)
	if !found {
		before, after = template+" ", ""
	}
	var msg mcfmt.Message
	if text := discordfmt.Render(before, vars); text != "" {
		msg = append(msg, mcfmt.Colored(text, mcfmt.ColorGray))
	}
	msg = append(msg, body...)
	if text := discordfmt.Render(strings.ReplaceAll(after, messagePlaceholder, ""), vars); text != "" {
		msg = append(msg, mcfmt.Colored(text, mcfmt.ColorGray))
	}
	return msg
}

func advancementSentence(a *AdvancementData) mcfmt.Message {
	color := mcfmt.ColorGreen
	if a.Kind == AdvancementChallenge {
		color = mcfmt.ColorDarkPurple
	}
	return mcfmt.Message{
		mcfmt.Text(a.Player + " " + advancementVerb(a.Kind) + " "),
		{Text: "[" + a.Title + "]", Hover: a.Description, Color: color},
	}
}

func lifecycleSentence(e *EventData) mcfmt.Message {
	switch e.Kind {
	case EventJoin:
		return mcfmt.Message{mcfmt.Colored(e.Player+" joined the game", mcfmt.ColorYellow)}
	case EventLeave:
		return mcfmt.Message{mcfmt.Colored(e.Player+" left the game", mcfmt.ColorYellow)}
	default:
		if e.DeathMessage != "" {
			return mcfmt.Message{mcfmt.Text(e.DeathMessage)}
		}
		return mcfmt.Message{mcfmt.Text(e.Player + " died")}
	}
}

// fallbackSentence renders an incomplete structured payload. It prefers a
// sentence rebuilt from whatever was extracted, then the raw embed text, and
// finally a generic notice naming the remote author.
func fallbackSentence(env *InboundEnvelope, p *Payload) mcfmt.Message {
	part := p.partial
	switch p.Kind {
	case PayloadAdvancement:
		switch {
		case part.player != "" && part.title != "":
			return advancementSentence(&AdvancementData{
				Player: part.player,
				Title:  part.title,
				Kind:   part.advancementKind,
			})
		case part.player != "":
			return mcfmt.Message{mcfmt.Text(part.player + " made " + withArticle(part.advancementKind))}
		}
	case PayloadLifecycle:
		if part.player != "" {
			return lifecycleSentence(&EventData{Player: part.player, Kind: part.eventKind})
		}
	}
	if p.Embed != nil {
		if text := embedText(*p.Embed); text != "" {
			return mcfmt.Message{mcfmt.Text(discordfmt.StripCodes(text))}
		}
	}
	author := strings.TrimSpace(discordfmt.StripCodes(env.AuthorDisplayName))
	if author == "" {
		author = "another server"
	}
	what := "a player event"
	if p.Kind == PayloadAdvancement {
		what = withArticle(part.advancementKind)
	}
	return mcfmt.Message{mcfmt.Text(author + " reported " + what)}
}

func withArticle(kind AdvancementKind) string {
	name := strings.ToLower(kind.String())
	if kind == AdvancementNormal {
		return "an " + name
	}
	return "a " + name
}
