// Copyright 2025-2026 the rowbinary-go authors.
// SPDX-License-Identifier: Apache-2.0

// Package chclient wires the Type Registry, RowBinary Codec, Schema Cache,
// and HTTP Request Engine into a single Client, exposing the query and
// insert operations of spec.md §2's data flow behind the configuration
// surface of spec.md §6.
package chclient
