//go:build debug

package renderer

const validationDefault = true
