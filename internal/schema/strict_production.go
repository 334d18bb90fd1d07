//go:build production

package schema

// ValidationEnabled gates shape and name checks in constructors. Builds tagged
// `production` skip them.
const ValidationEnabled = false
