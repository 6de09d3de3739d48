// Package media uploads exam images to object storage and hands back the
// public id and URL that get stored with the exam.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"examportal/internal/apperr"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

var ErrUploadFailed = apperr.Unavailable("media_unavailable", "media storage is unavailable")

type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// PublicBaseURL overrides the default https://<bucket>.<endpoint> prefix.
	PublicBaseURL string
}

type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type OSSStore struct {
	bucket  objectPutter
	baseURL string
	newKey  func() string
}

func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("oss bucket: %w", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		base = "https://" + cfg.Bucket + "." + host
	}
	return newOSSStore(bucket, base), nil
}

func newOSSStore(bucket objectPutter, baseURL string) *OSSStore {
	return &OSSStore{bucket: bucket, baseURL: baseURL, newKey: uuid.NewString}
}

// Upload stores body under folder with a random name that keeps the
// original extension.
func (s *OSSStore) Upload(ctx context.Context, folder, filename, contentType string, body io.Reader) (string, string, error) {
	key := path.Join(strings.Trim(folder, "/"), s.newKey()+strings.ToLower(path.Ext(filename)))
	err := s.bucket.PutObject(key, body, oss.ContentType(contentType), oss.WithContext(ctx))
	if err != nil {
		return "", "", fmt.Errorf("%w: put %s: %v", ErrUploadFailed, key, err)
	}
	return key, s.baseURL + "/" + key, nil
}
