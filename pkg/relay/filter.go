// Copyright 2024-2026 Aiku AI

package relay

import "strings"

// Reject reasons reported by Filter.Check and exported as metric labels.
const (
	ReasonSelf         = "self"
	ReasonOwnWebhook   = "own_webhook"
	ReasonBot          = "bot"
	ReasonOtherWebhook = "other_webhook"
	ReasonSamePrefix   = "same_prefix"
)

// Verdict is the outcome of the inbound filter. Reason is empty when accepted.
type Verdict struct {
	Accept bool
	Reason string
}

func accept() Verdict { return Verdict{Accept: true} }
func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Filter applies the echo prevention rules to inbound envelopes. The rules
// run in a fixed order and the first match rejects:
//
//  1. the author is our own gateway account or one of our own webhooks
//     (always on, not configurable);
//  2. the author is a bot account and ignore_bots is set;
//  3. the author is another webhook and ignore_other_webhooks is set, unless
//     filter_by_prefix narrows this to display names carrying our prefix.
type Filter struct{}

// Check evaluates env against the current identity and config.
func (Filter) Check(env *InboundEnvelope, ident WebhookIdentity, cfg *Config) Verdict {
	if env.IsSelf {
		return reject(ReasonSelf)
	}
	if ident.Matches(env.AuthorID) {
		return reject(ReasonOwnWebhook)
	}
	if env.IsBot && !env.IsWebhook && cfg.IgnoreBots {
		return reject(ReasonBot)
	}
	if env.IsWebhook && cfg.IgnoreOtherWebhooks {
		if !cfg.FilterByPrefix {
			return reject(ReasonOtherWebhook)
		}
		if prefix := strings.TrimSpace(cfg.ServerPrefix); prefix != "" && strings.Contains(env.AuthorDisplayName, prefix) {
			return reject(ReasonSamePrefix)
		}
	}
	return accept()
}
