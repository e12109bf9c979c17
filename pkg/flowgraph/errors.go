package flowgraph

import (
	"github.com/flyteorg/flytestdlib/errors"
)

const (
	ErrPathFinder        errors.ErrorCode = "PathFinderError"
	ErrPathNotFound      errors.ErrorCode = "PathNotFound"
	ErrUnknownType       errors.ErrorCode = "UnknownType"
	ErrInvalidConfig     errors.ErrorCode = "InvalidConfig"
	ErrDuplicateDataNode errors.ErrorCode = "DuplicateDataNode"
	ErrDuplicateFlowEdge errors.ErrorCode = "DuplicateFlowEdge"
	ErrDataNodeNotFound  errors.ErrorCode = "DataNodeNotFound"
	ErrDataNodeHasEdges  errors.ErrorCode = "DataNodeHasEdges"
	ErrFlowEdgeNotFound  errors.ErrorCode = "FlowEdgeNotFound"
)

// IsGraphConsistencyError reports whether err was raised because a mutation would leave the graph inconsistent. Such
// mutations are rejected and leave the graph unchanged.
func IsGraphConsistencyError(err error) bool {
	for _, code := range []errors.ErrorCode{ErrDuplicateDataNode, ErrDuplicateFlowEdge, ErrDataNodeNotFound,
		ErrDataNodeHasEdges, ErrFlowEdgeNotFound} {
		if errors.IsCausedBy(err, code) {
			return true
		}
	}

	return false
}
