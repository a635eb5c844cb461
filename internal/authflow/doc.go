// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authflow coordinates credential refresh for in-flight streams.
//
// When a streaming request dies on HTTP 401, the stream must wait for fresh
// credentials and retry exactly once. Several streams can hit 401 in the
// same instant; all of them must share one underlying refresh call rather
// than stampeding the identity provider. The Coordinator provides that
// single-flight discipline:
//
//   - the first 401 starts the refresh; every concurrent 401 joins it
//   - all waiters observe the same outcome (success, failure, or timeout)
//   - a waiter never blocks longer than the configured timeout
//   - the credential is re-read from the store after the refresh settles,
//     never cached across a refresh
//
// The Coordinator is an explicit, injectable object rather than a hidden
// package global so tests can run isolated instances with fake refreshers
// and deterministic timers.
package authflow
