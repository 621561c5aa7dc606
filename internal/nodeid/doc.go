// internal/nodeid/doc.go

/*
Package nodeid provides the lineage of a node in a dynamically discovered tree:
the chain of identifiers from the root down to the node itself.

A lineage is immutable and only points upward, so holding one never keeps a
parent node's execution state alive. Its canonical string form joins the
identifiers with "/", e.g. `top/8863/8952`.
*/
package nodeid
