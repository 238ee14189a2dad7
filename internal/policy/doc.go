// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package policy resolves per-domain routing overrides from request
// metadata.
//
// Domains are free-form tags ("medical", "legal", "support") attached by
// the caller. A domain may override the quality threshold, force the
// verifier after drafting, or skip the drafter entirely. Tag extraction
// tolerates the historical metadata shapes ("domain", nested
// "cascadeflow.domain", legacy "cascadeflow_domain") and normalizes case;
// unknown or absent domains resolve to no policy.
package policy
