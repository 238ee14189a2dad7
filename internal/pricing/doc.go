// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing provides the cost accountant for the cascade engine:
// a per-model price table, cost computation from token counts, and the
// savings figure comparing the cascade against a verifier-only baseline.
//
// # Cost Model
//
// Prices are expressed in USD per million tokens, split into input and
// output rates. Cost computation is a pure function of token counts and the
// table; unknown models cost 0 and are reported via the ok return value so
// callers can surface a warning instead of a silent zero.
//
// # Savings Convention
//
// Savings compare the cost actually paid (drafter attempt plus verifier,
// when called) against what a verifier-only run over the same token volume
// would have cost. The convention is valid whether or not the verifier was
// called: an accepted draft yields positive savings, an escalated request
// yields negative savings (you paid for both calls).
package pricing
