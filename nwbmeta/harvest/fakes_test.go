package harvest

import (
	"bytes"
	"context"
	"io"

	"github.com/batchatco/go-nwb-meta/nwbmeta/api"
	"github.com/pkg/errors"
)

type fakeLister struct {
	assets []api.Asset
	calls  int
}

func (l *fakeLister) Assets(ctx context.Context, dandisetID, version string) (api.AssetIterator, error) {
	l.calls++
	return &fakeIterator{assets: l.assets}, nil
}

type fakeIterator struct {
	assets []api.Asset
}

func (it *fakeIterator) Next(ctx context.Context) (api.Asset, error) {
	if len(it.assets) == 0 {
		return api.Asset{}, io.EOF
	}
	a := it.assets[0]
	it.assets = it.assets[1:]
	return a, nil
}

func asset(id, path string) api.Asset {
	return api.Asset{Identifier: id, Path: path, DownloadURL: "mem://files/" + id}
}

type fakeFile struct {
	*bytes.Reader
	url    string
	closed int
}

func (f *fakeFile) Close() error {
	f.closed++
	return nil
}

// fakeOpener serves the trees in files by URL. failures[url] makes that
// many opens of url fail before one succeeds.
type fakeOpener struct {
	files    map[string]*fakeGroup
	failures map[string]int
	opens    map[string]int
	handles  []*fakeFile
}

var errRemote = errors.New("connection reset")

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		files:    map[string]*fakeGroup{},
		failures: map[string]int{},
		opens:    map[string]int{},
	}
}

func (o *fakeOpener) Open(ctx context.Context, url string) (api.ReadSeekerCloser, error) {
	o.opens[url]++
	if o.failures[url] > 0 {
		o.failures[url]--
		return nil, errRemote
	}
	if _, has := o.files[url]; !has {
		return nil, errors.Wrap(errRemote, url)
	}
	f := &fakeFile{Reader: bytes.NewReader(nil), url: url}
	o.handles = append(o.handles, f)
	return f, nil
}

func (o *fakeOpener) totalOpens() int {
	n := 0
	for _, c := range o.opens {
		n += c
	}
	return n
}

type fakeTrees struct {
	opener *fakeOpener
	closes int
}

func (t *fakeTrees) OpenTree(r api.ReadSeekerCloser) (api.Tree, error) {
	f := r.(*fakeFile)
	return &fakeTree{root: t.opener.files[f.url], owner: t}, nil
}

type fakeTree struct {
	root  *fakeGroup
	owner *fakeTrees
}

func (t *fakeTree) Root() api.Group { return t.root }
func (t *fakeTree) Close() error {
	t.owner.closes++
	return nil
}

type attrs struct {
	keys []string
	vals map[string]any
}

func newAttrs(kv ...any) attrs {
	a := attrs{vals: map[string]any{}}
	for i := 0; i < len(kv); i += 2 {
		k := kv[i].(string)
		a.keys = append(a.keys, k)
		a.vals[k] = kv[i+1]
	}
	return a
}

func (a attrs) Keys() []string { return a.keys }
func (a attrs) Get(key string) (any, bool) {
	v, has := a.vals[key]
	return v, has
}

type fakeGroup struct {
	path     string
	attrs    attrs
	children []api.Node
}

func (g *fakeGroup) Path() string                  { return g.path }
func (g *fakeGroup) Attributes() api.AttributeMap  { return g.attrs }
func (g *fakeGroup) Children() ([]api.Node, error) { return g.children, nil }

type fakeDataset struct {
	path   string
	attrs  attrs
	shape  []int64
	goType string
}

func (d *fakeDataset) Path() string                 { return d.path }
func (d *fakeDataset) Attributes() api.AttributeMap { return d.attrs }
func (d *fakeDataset) Shape() []int64               { return d.shape }
func (d *fakeDataset) GoType() string               { return d.goType }

// nwbTree is a small NWB-like file.
func nwbTree(session string) *fakeGroup {
	return &fakeGroup{
		path:  "/",
		attrs: newAttrs("neurodata_type", "NWBFile", "namespace", "core", "nwb_version", "2.6.0"),
		children: []api.Node{
			&fakeGroup{path: "/acquisition", attrs: newAttrs(), children: []api.Node{
				&fakeGroup{path: "/acquisition/ElectricalSeries",
					attrs: newAttrs("neurodata_type", "ElectricalSeries", "comments", "no comments"),
					children: []api.Node{
						&fakeDataset{path: "/acquisition/ElectricalSeries/data",
							attrs: newAttrs("conversion", float32(1e-6), "unit", "volts"),
							shape: []int64{30000, 64}, goType: "int16"},
						&fakeDataset{path: "/acquisition/ElectricalSeries/electrodes",
							attrs: newAttrs("table", api.Reference{Address: 0x5a0}),
							shape: []int64{64}, goType: "int32"},
					}},
			}},
			&fakeDataset{path: "/file_create_date", attrs: newAttrs(), shape: []int64{1}, goType: "string"},
			&fakeGroup{path: "/general", attrs: newAttrs(), children: []api.Node{
				&fakeDataset{path: "/general/session_id", attrs: newAttrs(), shape: []int64{}, goType: "string"},
			}},
			&fakeDataset{path: "/session_description", attrs: newAttrs("source", session), shape: []int64{}, goType: "string"},
		},
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
