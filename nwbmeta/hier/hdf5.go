package hier

import (
	"sort"

	ncapi "github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/hdf5"
	"github.com/batchatco/go-nwb-meta/internal"
	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/batchatco/go-thrower"
	"github.com/pkg/errors"
)

// HDF5 opens HDF5 files with the native Go reader. A nil Logger logs to
// stderr.
type HDF5 struct {
	Logger *internal.Logger
}

var _ api.TreeOpener = HDF5{}

// OpenTree checks the signature and parses the superblock of r. If it
// returns no error the tree owns r, and closing the tree closes it.
func (h HDF5) OpenTree(r api.ReadSeekerCloser) (t api.Tree, err error) {
	defer thrower.RecoverError(&err)
	if err := Sniff(r); err != nil {
		return nil, err
	}
	g, err := hdf5.New(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening HDF5")
	}
	ht := &h5Tree{logger: h.Logger}
	if ht.logger == nil {
		ht.logger = internal.NewLogger()
	}
	ht.root = &h5Group{tree: ht, g: g, path: "/"}
	ht.opened = append(ht.opened, g)
	return ht, nil
}

type h5Tree struct {
	root   *h5Group
	opened []ncapi.Group
	logger *internal.Logger
}

func (t *h5Tree) Root() api.Group {
	return t.root
}

// Close closes the subgroups opened during the walk, then the root.
func (t *h5Tree) Close() error {
	for i := len(t.opened) - 1; i >= 0; i-- {
		t.opened[i].Close()
	}
	t.opened = nil
	return nil
}

type h5Group struct {
	tree *h5Tree
	g    ncapi.Group
	path string
}

func (g *h5Group) Path() string {
	return g.path
}

func (g *h5Group) Attributes() api.AttributeMap {
	return attributes(g.g.Attributes())
}

// Children merges subgroups and datasets in ascending name order, the
// default link order of the HDF5 library.
func (g *h5Group) Children() ([]api.Node, error) {
	groups := g.g.ListSubgroups()
	vars := g.g.ListVariables()
	isGroup := make(map[string]bool, len(groups))
	names := make([]string, 0, len(groups)+len(vars))
	for _, name := range groups {
		isGroup[name] = true
		names = append(names, name)
	}
	for _, name := range vars {
		if !isGroup[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	children := make([]api.Node, 0, len(names))
	for _, name := range names {
		path := JoinPath(g.path, name)
		if isGroup[name] {
			sub, err := g.g.GetGroup(name)
			if err != nil {
				return nil, errors.Wrapf(err, "opening group %s", path)
			}
			g.tree.opened = append(g.tree.opened, sub)
			children = append(children, &h5Group{tree: g.tree, g: sub, path: path})
			continue
		}
		vg, err := g.g.GetVarGetter(name)
		if err != nil {
			return nil, errors.Wrapf(err, "opening dataset %s", path)
		}
		children = append(children, &h5Dataset{vg: vg, path: path})
	}
	g.tree.logger.Debugf("%s: %d groups, %d datasets", g.path, len(groups), len(vars))
	return children, nil
}

type h5Dataset struct {
	vg   ncapi.VarGetter
	path string
}

func (d *h5Dataset) Path() string {
	return d.path
}

func (d *h5Dataset) Attributes() api.AttributeMap {
	return attributes(d.vg.Attributes())
}

func (d *h5Dataset) Shape() []int64 {
	shape := d.vg.Shape()
	if shape == nil {
		return []int64{}
	}
	return shape
}

func (d *h5Dataset) GoType() string {
	return d.vg.GoType()
}

// attributes keeps a nil map from becoming a non-nil interface.
func attributes(am ncapi.AttributeMap) api.AttributeMap {
	if am == nil {
		return nil
	}
	return am
}
