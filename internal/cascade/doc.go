// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cascade implements the cost-aware request cascading engine.
//
// A request is first routed: a domain policy may send it straight to the
// verifier, dangerous bound tools force escalation, and the complexity
// pre-router withholds cascading from Hard/Expert queries. Otherwise the
// cheap drafter is called, its response scored, and the expensive verifier
// invoked only when the draft misses the quality gate or policy demands it.
//
// # Routing Precedence
//
//	domain DirectToVerifier > tool risk >= High > pre-router tier > cascade
//
// # Failure Semantics
//
// A transport failure from either model is not a quality signal: it
// propagates to the caller untouched and never triggers escalation or a
// retry. This holds in streaming mode too: a mid-draft stream error
// propagates rather than falling back to a blocking call.
//
// # Concurrency
//
// Within one request the drafter strictly precedes the verifier; the two
// are never raced. One Orchestrator may serve many concurrent requests:
// every call returns its own Result value, and the configuration is
// read-only after construction.
package cascade
