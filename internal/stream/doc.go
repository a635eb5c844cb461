// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream delivers chat completions incrementally over SSE and owns
// the bounded auth-retry contract.
//
// A stream that dies on HTTP 401 does not fail immediately: it awaits the
// authflow coordinator's shared refresh, re-reads the credential, and
// retries the original request exactly once. A 401 on the retried attempt
// is terminal; bounding the retry at one stops refresh loops from
// amplifying into logout storms. Each attempt's lifecycle is tracked on a
// Session so callers can render what the stream is doing.
package stream
