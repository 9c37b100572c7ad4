package codeatlas

import (
	"github.com/codeatlas-dev/codeatlas/internal/ccm"
	"github.com/codeatlas-dev/codeatlas/internal/graph"
)

// Public type aliases for internal types used in the Engine API. These
// are Go type aliases (=) — identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Document = ccm.Document
type Node = ccm.Node
type Relationship = ccm.Relationship
type Project = ccm.Project
type Metadata = ccm.Metadata

type DependencyGraph = graph.Graph
type GraphPolicy = graph.Policy

// ErrSchema is re-exported so callers can errors.Is against graph
// conversion failures without importing internal packages.
var ErrSchema = ccm.ErrSchema
