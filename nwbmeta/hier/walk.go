// Package hier walks hierarchical files: groups holding groups and
// datasets, every node carrying attributes.
package hier

import (
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/batchatco/go-thrower"
	"github.com/pkg/errors"
)

// Walk calls visit on every node under root, root included, in depth-first
// pre-order. Children are visited in the order their group lists them.
// The walk stops at the first error from visit or from listing a group.
func Walk(root api.Group, visit func(api.Node) error) (err error) {
	defer thrower.RecoverError(&err)
	if root == nil {
		return ErrNilGroup
	}
	stack := []api.Node{root}
	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		thrower.ThrowIfError(visit(node))

		switch node := node.(type) {
		case api.Group:
			children, err := node.Children()
			thrower.ThrowIfError(errors.Wrapf(err, "listing %s", node.Path()))
			// reversed, so the first child is popped first
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		case api.Dataset:
		default:
			thrower.Throw(errors.Wrapf(ErrNodeKind, "%s: %T", node.Path(), node))
		}
	}
	return nil
}

// JoinPath returns the absolute path of the child name of the group at parent.
func JoinPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}
