package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewire/types"
)

// OpenReadDataset opens a dataset for reading with the same layout and
// codec as the write path.
func OpenReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// ReadFrames returns every archived frame of stream, ordered by Seq. An
// empty stream matches all streams.
func ReadFrames(ctx context.Context, ds lode.Dataset, stream string) ([]*types.FrameEvent, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var frames []*types.FrameEvent
	for _, snap := range snapshots {
		if !snapshotMatches(snap, "stream", stream) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			f, ok := fromFrameRecordMap(m)
			if !ok {
				continue
			}
			if stream != "" && f.Stream != stream {
				continue
			}
			frames = append(frames, f)
		}
	}

	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Seq < frames[j].Seq })
	return frames, nil
}

// snapshotMatches reports whether any file of snap lies in the key=value
// partition. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if hasPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches whole path segments so stream=a does not match
// stream=ab.
func hasPartition(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
