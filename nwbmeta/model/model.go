// Package model holds the harvested metadata documents and their JSON shape.
package model

import (
	"github.com/batchatco/go-nwb-meta/nwbmeta/util"
	"github.com/pkg/errors"
)

// DraftVersion is the dandiset version the harvester reads.
const DraftVersion = "draft"

// ErrMalformed is returned for documents that decode but lack required fields.
var ErrMalformed = errors.New("malformed metadata document")

// Group describes one container node of a file.
type Group struct {
	Path  string           `json:"path"`
	Attrs *util.OrderedMap `json:"attrs"`
}

// Dataset describes one array of a file.
type Dataset struct {
	Path  string           `json:"path"`
	Attrs *util.OrderedMap `json:"attrs"`
	Shape []int64          `json:"shape"`
	Dtype string           `json:"dtype"`
}

type NwbMetadata struct {
	Groups   []Group   `json:"groups"`
	Datasets []Dataset `json:"datasets"`
}

// Asset is the harvested metadata of one remote file.
type Asset struct {
	AssetID     string      `json:"asset_id"`
	AssetPath   string      `json:"asset_path"`
	NwbMetadata NwbMetadata `json:"nwb_metadata"`
}

// Dandiset is the aggregate document covering a whole dandiset.
type Dandiset struct {
	DandisetID      string   `json:"dandiset_id"`
	DandisetVersion string   `json:"dandiset_version"`
	NwbAssets       []*Asset `json:"nwb_assets"`
}

func NewDandiset(dandisetID, version string) *Dandiset {
	return &Dandiset{
		DandisetID:      dandisetID,
		DandisetVersion: version,
		NwbAssets:       []*Asset{},
	}
}

func NewAsset(assetID, assetPath string) *Asset {
	return &Asset{
		AssetID:   assetID,
		AssetPath: assetPath,
		NwbMetadata: NwbMetadata{
			Groups:   []Group{},
			Datasets: []Dataset{},
		},
	}
}

// Index maps asset ids to assets. The first of duplicate ids wins.
func (d *Dandiset) Index() map[string]*Asset {
	idx := make(map[string]*Asset, len(d.NwbAssets))
	for _, a := range d.NwbAssets {
		if _, has := idx[a.AssetID]; !has {
			idx[a.AssetID] = a
		}
	}
	return idx
}

func (d *Dandiset) Validate() error {
	if d.DandisetID == "" {
		return errors.Wrap(ErrMalformed, "missing dandiset_id")
	}
	for i, a := range d.NwbAssets {
		if a == nil {
			return errors.Wrapf(ErrMalformed, "nwb_assets[%d] is null", i)
		}
		if err := a.Validate(); err != nil {
			return errors.Wrapf(err, "nwb_assets[%d]", i)
		}
	}
	return nil
}

// Validate checks required fields and replaces missing lists and attribute
// maps with empty ones so the document re-encodes cleanly.
func (a *Asset) Validate() error {
	if a.AssetID == "" {
		return errors.Wrap(ErrMalformed, "missing asset_id")
	}
	md := &a.NwbMetadata
	if md.Groups == nil {
		md.Groups = []Group{}
	}
	if md.Datasets == nil {
		md.Datasets = []Dataset{}
	}
	for i := range md.Groups {
		if md.Groups[i].Attrs == nil {
			md.Groups[i].Attrs = &util.OrderedMap{}
		}
	}
	for i := range md.Datasets {
		ds := &md.Datasets[i]
		if ds.Attrs == nil {
			ds.Attrs = &util.OrderedMap{}
		}
		if ds.Shape == nil {
			ds.Shape = []int64{}
		}
		for _, dim := range ds.Shape {
			if dim < 0 {
				return errors.Wrapf(ErrMalformed, "negative dimension in %s", ds.Path)
			}
		}
	}
	return nil
}
