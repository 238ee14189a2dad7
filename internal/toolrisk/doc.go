// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package toolrisk classifies callable tools into risk tiers.
//
// A tool's name and description are matched against four ordered tables
// (Critical, High, Medium, Low). An exact or substring match on the name
// scores highest, a regex pattern match on the name scores next, and a
// keyword match in the description scores lowest. Every tier is scored
// independently; the tier with the highest accumulated score wins, and
// confidence is that tier's share of the total. Ties break toward the
// higher-severity tier, so classification errs toward escalation.
//
// An aggregate classification over a bound tool set forces verifier
// escalation whenever any tool reaches High or Critical: destructive or
// irreversible actions are never approved on the cheap drafter alone,
// regardless of the measured quality score.
package toolrisk
