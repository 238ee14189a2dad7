// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package toolrisk

import "regexp"

// =============================================================================
// MATCH WEIGHTS
// =============================================================================

// Match weights, highest to lowest. A name hit is strong evidence; a
// description keyword is weak evidence.
const (
	nameMatchWeight        = 3.0
	patternMatchWeight     = 2.0
	descriptionMatchWeight = 1.0
)

// defaultConfidence is reported when no table entry matches at all and the
// tool defaults to Medium. It is a flag value, not a measurement.
const defaultConfidence = 0.30

// tierTable holds the match material for one tier.
type tierTable struct {
	tier Tier

	// names match as substrings of the lower-cased tool name.
	names []string
	// patterns match against the lower-cased tool name.
	patterns []*regexp.Regexp
	// keywords match as substrings of the lower-cased description.
	keywords []string
}

// riskTables are scored independently per tool; order is severity order and
// only matters for tie-breaking (higher severity wins a tie).
var riskTables = []tierTable{
	{
		tier: TierCritical,
		names: []string{
			"delete", "drop", "truncate", "destroy", "wipe", "purge",
			"pay", "payment", "charge", "transfer_funds", "refund",
			"deploy", "rollback", "terminate", "shutdown",
			"broadcast", "send_email", "send_sms", "publish",
			"grant", "revoke", "sudo",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(rm|del|drop)_`),
			regexp.MustCompile(`_(all|everything|prod|production)$`),
			regexp.MustCompile(`^force_`),
		},
		keywords: []string{
			"irreversible", "permanently delete", "cannot be undone",
			"production", "real money", "live environment", "all users",
		},
	},
	{
		tier: TierHigh,
		names: []string{
			"write", "update", "modify", "edit", "create", "insert",
			"execute", "exec", "run", "shell", "bash", "eval",
			"upload", "move", "rename", "chmod", "kill", "restart",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(set|put|post)_`),
			regexp.MustCompile(`_(command|script|code)$`),
		},
		keywords: []string{
			"modifies", "writes to", "executes", "overwrite", "side effect",
			"system command", "arbitrary code",
		},
	},
	{
		tier: TierMedium,
		names: []string{
			"fetch", "download", "request", "http", "api_call",
			"query", "sql", "export", "scrape", "crawl",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(get|call)_.*(api|service|endpoint)`),
		},
		keywords: []string{
			"external", "network", "remote", "third-party", "internet",
			"database query",
		},
	},
	{
		tier: TierLow,
		names: []string{
			"read", "get", "list", "search", "find", "lookup",
			"view", "show", "describe", "count", "status", "calculate",
			"weather", "time", "convert",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^(read|get|list|is|has)_`),
		},
		keywords: []string{
			"read-only", "read only", "returns", "retrieves", "looks up",
			"no side effects", "local",
		},
	},
}
