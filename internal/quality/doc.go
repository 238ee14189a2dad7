// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quality scores drafted responses on a [0,1] confidence scale.
//
// Scoring runs in priority order:
//
//  1. Tool-call bypass: a response carrying tool calls scores 1.0, even with
//     empty text. A tool-calling response is structurally complete once it
//     names a valid call; penalizing empty prose would force needless
//     escalation and corrupt tool-use protocols downstream.
//  2. Token log-probabilities: when the provider exposes them, the score is
//     exp(mean logprob) clamped to [0,1], the model's own uncertainty.
//  3. Heuristics: length, sentence structure, and hedging-phrase penalties,
//     clamped into a floor/ceiling band.
//
// All thresholds and bonus magnitudes are named fields on Weights so they
// can be tuned without touching the algorithm. The scorer never errors;
// malformed input lands in the lowest heuristic band.
package quality
