// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package complexity classifies incoming queries into complexity tiers for
// the cascade pre-router.
//
// The pre-router decides whether cascading is attempted at all: queries in
// a cascade-eligible tier (Trivial/Simple/Moderate by default) try the
// drafter first, while Hard and Expert queries route straight to the
// verifier. Signals are cheap surface features (word count, code blocks,
// question density, multi-step language, conversation depth) because
// the classification runs on every request before any model call.
package complexity
