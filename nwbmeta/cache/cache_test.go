package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/batchatco/go-nwb-meta/nwbmeta/model"
	"github.com/batchatco/go-nwb-meta/nwbmeta/util"
	"gocloud.dev/blob/memblob"
)

func sampleAsset() *model.Asset {
	a := model.NewAsset("a1b2", "sub-1/sub-1_ecephys.nwb")
	attrs := &util.OrderedMap{}
	attrs.Add("neurodata_type", "NWBFile")
	attrs.Add("nwb_version", "2.6.0")
	a.NwbMetadata.Groups = append(a.NwbMetadata.Groups, model.Group{Path: "/", Attrs: attrs})
	a.NwbMetadata.Datasets = append(a.NwbMetadata.Datasets, model.Dataset{
		Path: "/acquisition/ts/data", Attrs: &util.OrderedMap{}, Shape: []int64{1000, 32}, Dtype: "int16"})
	return a
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	_, has, err := s.Get(ctx, "000123", "a1b2")
	if err != nil || has {
		t.Fatal("empty store: got", has, err)
	}
	in := sampleAsset()
	if err := s.Put(ctx, "000123", in); err != nil {
		t.Fatal(err)
	}
	out, has, err := s.Get(ctx, "000123", "a1b2")
	if err != nil || !has {
		t.Fatal("got", has, err)
	}
	b1, _ := json.Marshal(in)
	b2, _ := json.Marshal(out)
	if string(b1) != string(b2) {
		t.Error("Got", string(b2), "\nexpected", string(b1))
	}
	if _, has, _ := s.Get(ctx, "000124", "a1b2"); has {
		t.Error("entries must be scoped by dandiset")
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "a\nb"} {
		if _, _, err := s.Get(ctx, "000123", bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: expected ErrInvalidKey, got %v", bad, err)
		}
		if err := s.Put(ctx, bad, in); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: expected ErrInvalidKey, got %v", bad, err)
		}
	}
}

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	s := NewDirStore(root)
	testStore(t, s)

	// plain indented JSON at <root>/<dandiset>/<asset>
	b, err := os.ReadFile(filepath.Join(root, "000123", "a1b2"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "{\n  \"asset_id\": \"a1b2\",\n") {
		t.Error("Got", string(b))
	}
	entries, _ := os.ReadDir(filepath.Join(root, "000123"))
	if len(entries) != 1 {
		t.Error("temporary files left behind:", entries)
	}
}

func TestDirStoreMalformed(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "1"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"trunc":   `{"asset_id": "trunc", "asset_path"`,
		"noid":    `{"asset_path": "x.nwb"}`,
		"badtype": `{"asset_id": 7}`,
	} {
		if err := os.WriteFile(filepath.Join(root, "1", name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		_, _, err := NewDirStore(root).Get(context.Background(), "1", name)
		if !errors.Is(err, model.ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestDefaultDir(t *testing.T) {
	if s := NewDirStore(""); s.root != DefaultDir {
		t.Error("Got", s.root)
	}
}

func TestBucketStore(t *testing.T) {
	s := NewBucketStore(memblob.OpenBucket(nil))
	defer s.Close()
	testStore(t, s)
	keys := []string{}
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(context.Background())
		if err != nil {
			break
		}
		keys = append(keys, obj.Key)
	}
	if !reflect.DeepEqual(keys, []string{"000123/a1b2"}) {
		t.Error("Got keys", keys)
	}
}

func TestOpenBucketStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBucketStore(context.Background(), "file://"+filepath.ToSlash(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Put(context.Background(), "7", sampleAsset()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "7", "a1b2")); err != nil {
		t.Error(err)
	}
}
