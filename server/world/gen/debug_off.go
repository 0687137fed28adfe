//go:build !gendebug

package gen

// debugBuild enables height map verification of every generated chunk. It
// is set by building with the gendebug tag.
const debugBuild = false
