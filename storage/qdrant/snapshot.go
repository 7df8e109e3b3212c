package qdrant

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/storage"
	"github.com/qdrant/go-client/qdrant"
)

// CreateSnapshot asks the server to snapshot a collection.
func (i *Index) CreateSnapshot(ctx context.Context, collection string) (*storage.Snapshot, error) {
	desc, err := i.client.CreateSnapshot(ctx, collection)
	if err != nil {
		return nil, i.remote("create_snapshot", collection, err)
	}
	i.logger.Info("snapshot created", "collection", collection, "name", desc.GetName())
	return fromSnapshot(desc), nil
}

// ListSnapshots lists server-side snapshots, newest first.
func (i *Index) ListSnapshots(ctx context.Context, collection string) ([]*storage.Snapshot, error) {
	descs, err := i.client.ListSnapshots(ctx, collection)
	if err != nil {
		return nil, i.remote("list_snapshots", collection, err)
	}
	out := make([]*storage.Snapshot, len(descs))
	for n, d := range descs {
		out[n] = fromSnapshot(d)
	}
	slices.SortFunc(out, func(a, b *storage.Snapshot) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func fromSnapshot(d *qdrant.SnapshotDescription) *storage.Snapshot {
	s := &storage.Snapshot{Name: d.GetName(), Size: d.GetSize()}
	if d.GetCreationTime() != nil {
		s.CreatedAt = d.GetCreationTime().AsTime()
	}
	return s
}

// DownloadSnapshot streams a snapshot file from the HTTP API into w.
// The gRPC API has no file transfer, so this goes over REST.
func (i *Index) DownloadSnapshot(ctx context.Context, collection, name string, w io.Writer) error {
	endpoint := fmt.Sprintf("%s/collections/%s/snapshots/%s", i.restURL, url.PathEscape(collection), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	i.authorize(req)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return i.remote("download_snapshot", collection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", storage.ErrSnapshotNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return i.remote("download_snapshot", collection, statusError(resp))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return i.remote("download_snapshot", collection, err)
	}
	return nil
}

// RestoreSnapshot uploads a snapshot file and recovers the collection from it,
// replacing any existing contents.
func (i *Index) RestoreSnapshot(ctx context.Context, collection string, r io.Reader) error {
	i.forgetDimension(collection)
	body, contentType := multipartBody(r)
	endpoint := fmt.Sprintf("%s/collections/%s/snapshots/upload?wait=true&priority=snapshot", i.restURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	i.authorize(req)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return i.remote("restore_snapshot", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return i.remote("restore_snapshot", collection, statusError(resp))
	}
	i.logger.Info("snapshot restored", "collection", collection)
	return nil
}

func (i *Index) authorize(req *http.Request) {
	if i.apiKey != "" {
		req.Header.Set("api-key", i.apiKey)
	}
}

// multipartBody streams r as the "snapshot" form file without buffering it.
func multipartBody(r io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("snapshot", "upload.snapshot")
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: http %d: %s", core.ErrRemoteService, resp.StatusCode, msg)
}
