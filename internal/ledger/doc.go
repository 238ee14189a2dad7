// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ledger persists per-request cascade outcomes to SQLite so cost
// and savings survive process restarts. The in-memory session stats answer
// "how is this process doing"; the ledger answers "what did this month
// cost".
package ledger
