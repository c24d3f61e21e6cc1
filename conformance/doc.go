// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package conformance exercises the invariants and scenarios of spec.md §8
// against a real TCP listener standing in for a ClickHouse server, never
// against a mock of the wire protocol.
package conformance
