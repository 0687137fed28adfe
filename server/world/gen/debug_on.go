//go:build gendebug

package gen

const debugBuild = true
