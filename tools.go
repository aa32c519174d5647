// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

//go:build tools

// Package main pins tools and test-only dependencies in go.mod.
package main

import (
	// ginkgo CLI for the integration suites
	_ "github.com/onsi/ginkgo/v2/ginkgo"

	// test doubles
	_ "github.com/pashagolub/pgxmock/v4"
	_ "github.com/stretchr/testify/mock"
)
