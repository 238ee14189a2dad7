// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the model invocation boundary of the cascade
// engine and ships an OpenAI-compatible HTTP adapter.
//
// The engine consumes only the Model interface: blocking Invoke and
// chunk-forwarding StreamInvoke. The core never inspects provider wire
// formats beyond text content, an optional tool-call list, an optional
// token-usage record, and optional per-token log-probabilities.
//
// # Failure Contract
//
// A failed provider call surfaces as a *TransportError and is never a
// quality signal: the engine propagates it without retrying or cascading.
// The HTTP adapter has its own transient-error retry with backoff below
// that contract, plus a client-side rate limiter.
package provider
