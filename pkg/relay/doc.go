// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay implements the core of a Minecraft to chat-platform relay.
//
// Game adapters drive a [Relay] through the [GameEvents] capability set;
// chat gateways hand it an [InboundEnvelope] per received message through
// [Relay.HandleInbound]. The relay never constructs its collaborators: the
// in-game [Broadcaster], the [PreferenceLookup] and [LinkLookup] stores and
// the outbound [Sender] are injected through [Deps].
//
// # Core Types
//
// [Dispatcher] is the bounded outbound FIFO. Enqueue never blocks and drops
// the newest message when full; a single drain goroutine sends in order and
// pauses after each successful send to stay under the webhook rate limit.
// Delivery is at-most-once.
//
// [WebhookSender] posts Discord execute-webhook payloads with bounded
// transport timeouts and a staged Close.
//
// [Classify] tags an inbound envelope as advancement, lifecycle event, plain
// text or unclassified, in that order. Structured payloads that match but
// lack required fields carry an [ExtractionError] and are rendered with a
// fallback sentence rather than dropped.
//
// # Echo Prevention
//
// Several relay instances may share a channel, and every instance reads the
// channel it writes to. [Filter] rejects, in order: our own gateway account,
// our own webhooks (by the IDs resolved into [WebhookIdentity]), other bots
// when ignore_bots is set, and other webhooks when ignore_other_webhooks is
// set, optionally narrowed to same-prefix display names by filter_by_prefix.
// The first two layers cannot be turned off and must not be simplified or
// removed.
//
// Event embeds carry the footer "MCRelay · <Kind>". Peer instances classify
// on it, so the footer text is a wire protocol.
//
// # Sub-packages
//
//   - mcfmt converts chat text into clickable Minecraft text components.
//   - discordfmt renders game text as plain Discord content.
package relay
