package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSPublisher writes résumés to a Cloud Storage bucket as public objects.
type GCSPublisher struct {
	client *storage.Client
	bucket string
}

func NewGCSPublisher(ctx context.Context, bucket string, credentialsJSON []byte, opts ...option.ClientOption) (*GCSPublisher, error) {
	var all []option.ClientOption
	if len(credentialsJSON) > 0 {
		all = append(all, option.WithCredentialsJSON(credentialsJSON))
	}
	all = append(all, opts...)

	client, err := storage.NewClient(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket}, nil
}

// Publish uploads content with the publicRead ACL applied as part of the
// write, so a failed upload leaves no public object behind.
func (g *GCSPublisher) Publish(ctx context.Context, key string, content io.Reader, mediaType string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mediaType
	w.PredefinedACL = "publicRead"

	if _, err := io.Copy(w, content); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return publicURL("https://storage.googleapis.com/"+g.bucket, key), nil
}

func (g *GCSPublisher) Close() error {
	return g.client.Close()
}

// publicURL joins base and an object key, escaping each key segment.
func publicURL(base, key string) string {
	u := &url.URL{Path: "/" + key}
	return base + u.EscapedPath()
}
