package corpus

import (
	"context"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/utils/logging"
	"github.com/secmon-lab/reviewsage/pkg/utils/safe"
	"google.golang.org/api/iterator"
)

// ParseGCSURL splits "gs://bucket/prefix" into bucket and prefix
func ParseGCSURL(url string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok || rest == "" {
		return "", "", goerr.New("invalid GCS URL", goerr.V("url", url))
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", goerr.New("GCS URL has no bucket", goerr.V("url", url))
	}
	return bucket, prefix, nil
}

// LoadGCS reads every *.csv object under prefix, one group per object, in object name order
func LoadGCS(ctx context.Context, bucket, prefix string) ([]*model.Record, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	defer safe.Close(ctx, client)

	return loadBucket(ctx, client.Bucket(bucket), prefix)
}

func loadBucket(ctx context.Context, bkt *storage.BucketHandle, prefix string) ([]*model.Record, error) {
	var names []string
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list objects", goerr.V("prefix", prefix))
		}
		if strings.HasSuffix(strings.ToLower(attrs.Name), ".csv") {
			names = append(names, attrs.Name)
		}
	}
	if len(names) == 0 {
		return nil, goerr.New("no CSV objects found", goerr.V("prefix", prefix))
	}
	sort.Strings(names)

	var records []*model.Record
	for _, name := range names {
		group, err := GroupFromFilename(path.Base(name))
		if err != nil {
			return nil, err
		}

		r, err := bkt.Object(name).NewReader(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open object", goerr.V("object", name))
		}
		loaded, err := LoadCSV(r, group)
		safe.Close(ctx, r)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load object", goerr.V("object", name))
		}

		logging.From(ctx).Debug("loaded reviews from GCS", "object", name, "group", group, "records", len(loaded))
		records = append(records, loaded...)
	}
	return records, nil
}
