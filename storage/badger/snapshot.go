package badger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
)

const (
	snapshotExt        = ".snapshot"
	snapshotTimeFormat = "20060102T150405.000000000"
)

// snapshotHeader is the first line of a snapshot file. Every following line
// is one pointRecord.
type snapshotHeader struct {
	Collection string           `json:"collection"`
	Dimension  int              `json:"dimension"`
	Distance   storage.Distance `json:"distance"`
	CreatedAt  time.Time        `json:"createdAt"`
	Points     int              `json:"points"`
}

func (i *Index) collectionSnapshotDir(collection string) (string, error) {
	if i.snapshotDir == "" {
		return "", fmt.Errorf("%w: snapshot directory not configured", core.ErrConfiguration)
	}
	if err := validateCollectionName(collection); err != nil {
		return "", err
	}
	return filepath.Join(i.snapshotDir, collection), nil
}

// CreateSnapshot writes every point of the collection to a new snapshot file.
func (i *Index) CreateSnapshot(ctx context.Context, collection string) (*storage.Snapshot, error) {
	dir, err := i.collectionSnapshotDir(collection)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	name := collection + "-" + now.Format(snapshotTimeFormat) + snapshotExt
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	count, err := i.writeSnapshot(ctx, collection, now, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	i.logger.Info("snapshot created", "collection", collection, "name", name, "points", count)
	return &storage.Snapshot{Name: name, CreatedAt: now, Size: info.Size()}, nil
}

func (i *Index) writeSnapshot(ctx context.Context, collection string, now time.Time, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	count := 0

	err := i.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMeta(tx, collection)
		if err != nil {
			return err
		}
		prefix := makePointPrefix(collection)
		if err := scanPoints(ctx, tx, collection, prefix, func(*pointRecord) (bool, error) {
			count++
			return true, nil
		}); err != nil {
			return err
		}
		header := snapshotHeader{
			Collection: collection,
			Dimension:  meta.Dimension,
			Distance:   meta.Distance,
			CreatedAt:  now,
			Points:     count,
		}
		if err := enc.Encode(&header); err != nil {
			return err
		}
		return scanPoints(ctx, tx, collection, prefix, func(p *pointRecord) (bool, error) {
			return true, enc.Encode(p)
		})
	}, false)
	if err != nil {
		return 0, err
	}
	return count, bw.Flush()
}

// ListSnapshots lists snapshot files of the collection, newest first.
func (i *Index) ListSnapshots(ctx context.Context, collection string) ([]*storage.Snapshot, error) {
	dir, err := i.collectionSnapshotDir(collection)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshots []*storage.Snapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		created := info.ModTime().UTC()
		stamp := strings.TrimSuffix(strings.TrimPrefix(e.Name(), collection+"-"), snapshotExt)
		if t, err := time.Parse(snapshotTimeFormat, stamp); err == nil {
			created = t
		}
		snapshots = append(snapshots, &storage.Snapshot{
			Name:      e.Name(),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}
	slices.SortFunc(snapshots, func(a, b *storage.Snapshot) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return snapshots, nil
}

// DownloadSnapshot copies a snapshot file into w.
func (i *Index) DownloadSnapshot(ctx context.Context, collection, name string, w io.Writer) error {
	dir, err := i.collectionSnapshotDir(collection)
	if err != nil {
		return err
	}
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", storage.ErrSnapshotNotFound, name)
	}
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", storage.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// RestoreSnapshot replaces the collection with the contents of a snapshot
// stream. The snapshot may come from a differently named collection.
func (i *Index) RestoreSnapshot(ctx context.Context, collection string, r io.Reader) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return fmt.Errorf("%w: snapshot header: %v", storage.ErrSerializationFailed, err)
	}
	if header.Dimension <= 0 {
		return fmt.Errorf("%w: snapshot header has no dimension", storage.ErrSerializationFailed)
	}

	if err := i.DeleteCollection(ctx, collection); err != nil {
		return err
	}
	if err := i.CreateCollection(ctx, collection, storage.CollectionConfig{
		Dimension: header.Dimension,
		Distance:  header.Distance,
	}); err != nil {
		return err
	}

	wb := i.backend.NewWriteBatch()
	defer wb.Cancel()

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var p pointRecord
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: snapshot point %d: %v", storage.ErrSerializationFailed, count, err)
		}
		if err := core.CheckDimension(header.Dimension, p.Vector); err != nil {
			return fmt.Errorf("snapshot point %d: %w", p.ID, err)
		}
		value, err := marshalPoint(&p)
		if err != nil {
			return err
		}
		if err := wb.Set(makePointKey(collection, p.ID), value); err != nil {
			return err
		}
		count++
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	i.logger.Info("snapshot restored", "collection", collection, "source", header.Collection, "points", count)
	return nil
}
