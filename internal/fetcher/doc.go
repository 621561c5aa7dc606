// Package fetcher implements a workexec.Executor that reads work items from a
// JSON-over-HTTP service.
//
// Each identifier is turned into a URL through a format string, the document
// is decoded, and the child identifiers and metric are extracted with
// JSONPath expressions. When no metric path is configured the metric is the
// number of children, which makes the tree aggregate the total number of
// descendants. An optional index document (a JSON array of identifiers)
// provides the children of a synthetic root.
package fetcher
