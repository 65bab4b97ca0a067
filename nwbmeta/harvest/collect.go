package harvest

import (
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/batchatco/go-nwb-meta/nwbmeta/hier"
	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/batchatco/go-nwb-meta/nwbmeta/sanitize"
	"github.com/pkg/errors"
)

// Collect builds the metadata of one file from its tree: every group,
// the root first, and every dataset, each list in depth-first pre-order.
func Collect(assetID, assetPath string, root api.Group) (*model.Asset, error) {
	a := model.NewAsset(assetID, assetPath)
	md := &a.NwbMetadata
	err := hier.Walk(root, func(n api.Node) error {
		switch n := n.(type) {
		case api.Group:
			md.Groups = append(md.Groups, model.Group{
				Path:  n.Path(),
				Attrs: sanitize.Attributes(n.Attributes()),
			})
		case api.Dataset:
			shape := append([]int64{}, n.Shape()...)
			for _, dim := range shape {
				if dim < 0 {
					return errors.Wrapf(model.ErrMalformed, "%s has shape %v", n.Path(), shape)
				}
			}
			md.Datasets = append(md.Datasets, model.Dataset{
				Path:  n.Path(),
				Attrs: sanitize.Attributes(n.Attributes()),
				Shape: shape,
				Dtype: sanitize.Dtype(n.GoType()),
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", assetPath)
	}
	return a, nil
}
