// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent runs the bounded tool-calling loop on top of any message
// caller, cascaded or not. Tool handlers execute locally; their results
// are folded back into the transcript until the model stops asking for
// tools or the step budget runs out. Tool failures never abort a run:
// they are reported back to the model as tool messages so it can react.
package agent
