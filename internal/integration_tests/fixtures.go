// Package integration_tests holds shared configuration snippets for the
// end-to-end tests in its subpackages.
package integration_tests

// TreeYAML is a five node tree:
//
//	top(1) -> a(2) -> c(4), d(5)
//	       -> b(3)
//
// The whole tree sums to 15, a to 11 and b to 3.
const TreeYAML = `
root: top
nodes:
  top: {metric: 1, children: [a, b]}
  a: {metric: 2, children: [c, d]}
  b: {metric: 3}
  c: {metric: 4}
  d: {metric: 5}
`

// StaticSourceHCL points the app at tree.yaml next to the config.
const StaticSourceHCL = `
source "static" {
  file = "tree.yaml"
}
`
