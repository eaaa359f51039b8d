// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles CUE documents against embedded schemas and decodes
// them into Go values. Recipes and the tool configuration both go through it.
package cueutil
