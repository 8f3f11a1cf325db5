package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Store, error) {
		bucket, prefix := u.SplitPath()
		cfg := S3Config{
			Bucket:         bucket,
			Prefix:         prefix,
			Endpoint:       u.String("endpoint", ""),
			Region:         u.String("region", setting.FirstEnv("AWS_REGION", "AWS_DEFAULT_REGION")),
			Insecure:       u.Bool("insecure", false),
			ForcePathStyle: u.Bool("path-style", false),
		}
		if u.Host() != "" {
			cfg.Bucket = u.Host()
			cfg.Prefix = u.Path()
		}
		accessKey := u.Secret("access-key", "AWS_ACCESS_KEY_ID")
		secretKey := u.Secret("secret-key", "AWS_SECRET_ACCESS_KEY")
		if accessKey != "" && secretKey != "" {
			cfg.CustomCreds = credentials.NewStaticV4(accessKey, secretKey, "")
		}
		return NewS3(cfg)
	}, "s3", "aws")
}

// S3Config controls the S3-compatible driver.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	CustomCreds    *credentials.Credentials
	Transport      http.RoundTripper
}

// S3 implements Store on S3-compatible object storage via the MinIO client.
// Conditional writes use If-Match/If-None-Match preconditions, which both AWS
// and MinIO honour.
type S3 struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3 constructs a store using the provided configuration.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: s3 bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	if cfg.Transport == nil {
		cfg.Transport = defaultTransport()
	}
	var creds *credentials.Credentials
	if cfg.CustomCreds != nil {
		creds = cfg.CustomCreds
	} else {
		chain := []credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		}
		creds = credentials.NewChainCredentials(chain)
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("blob: create s3 client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &S3{client: client, cfg: cfg}, nil
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.MaxIdleConns == 0 {
		clone.MaxIdleConns = 256
	}
	if clone.MaxIdleConnsPerHost == 0 {
		clone.MaxIdleConnsPerHost = 64
	}
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	return clone
}

// Client exposes the underlying MinIO client for diagnostics.
func (s *S3) Client() *minio.Client { return s.client }

func (s *S3) object(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

func (s *S3) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(err, "blob: s3 get")
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, s.wrapError(err, "blob: s3 stat")
	}
	return &Object{Info: s.info(key, info), Body: obj}, nil
}

func (s *S3) Stat(ctx context.Context, key string) (Info, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, s.object(key), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, s.wrapError(err, "blob: s3 stat")
	}
	return s.info(key, info), nil
}

func (s *S3) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.ExpectedETag != "" {
		putOpts.SetMatchETag(opts.ExpectedETag)
	} else if opts.IfNotExists {
		putOpts.SetMatchETagExcept("*")
	}
	length := int64(-1)
	if seeker, ok := body.(io.Seeker); ok {
		if current, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			if end, err := seeker.Seek(0, io.SeekEnd); err == nil {
				length = end - current
				_, _ = seeker.Seek(current, io.SeekStart)
			}
		}
	}
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, s.object(key), body, length, putOpts)
	if err != nil {
		if isPreconditionFailed(err) {
			return Info{}, ErrCASMismatch
		}
		if isNotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, s.wrapError(err, "blob: s3 put")
	}
	return Info{
		Key:         key,
		ETag:        stripETag(info.ETag),
		Size:        info.Size,
		ContentType: opts.ContentType,
		ModTime:     info.LastModified,
	}, nil
}

func (s *S3) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	if opts.ExpectedETag != "" {
		info, err := s.Stat(ctx, key)
		if err != nil {
			return err
		}
		if info.ETag != stripETag(opts.ExpectedETag) {
			return ErrCASMismatch
		}
	}
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.object(key), minio.RemoveObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return s.wrapError(err, "blob: s3 delete")
	}
	return nil
}

func (s *S3) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	// Cancelling stops the listing goroutine once the page is full.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	listOpts := minio.ListObjectsOptions{
		Prefix:    s.object(opts.Prefix),
		Recursive: true,
	}
	if opts.StartAfter != "" {
		listOpts.StartAfter = s.object(opts.StartAfter)
	}
	if opts.Limit > 0 {
		listOpts.MaxKeys = opts.Limit
	}
	var res ListResult
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, listOpts) {
		if obj.Err != nil {
			return ListResult{}, s.wrapError(obj.Err, "blob: s3 list")
		}
		if opts.Limit > 0 && len(res.Objects) >= opts.Limit {
			res.Truncated = true
			res.NextStartAfter = res.Objects[len(res.Objects)-1].Key
			return res, nil
		}
		key := obj.Key
		if s.cfg.Prefix != "" {
			key = strings.TrimPrefix(key, s.cfg.Prefix+"/")
		}
		res.Objects = append(res.Objects, Info{
			Key:         key,
			ETag:        stripETag(obj.ETag),
			Size:        obj.Size,
			ContentType: obj.ContentType,
			ModTime:     obj.LastModified,
		})
	}
	return res, nil
}

// Ping verifies the configured bucket exists and is reachable.
func (s *S3) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("blob: s3 ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("blob: s3 bucket %q does not exist", s.cfg.Bucket)
	}
	return nil
}

func (s *S3) Close() error { return nil }

func (s *S3) info(key string, info minio.ObjectInfo) Info {
	return Info{
		Key:         key,
		ETag:        stripETag(info.ETag),
		Size:        info.Size,
		ContentType: info.ContentType,
		ModTime:     info.LastModified,
	}
}

func (s *S3) wrapError(err error, msg string) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	if isRetryable(err) {
		return NewTransientError(wrapped)
	}
	return wrapped
}

func stripETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound
	}
	return false
}

func isPreconditionFailed(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		if errResp.StatusCode == http.StatusPreconditionFailed {
			return true
		}
		if errResp.StatusCode == http.StatusConflict {
			switch errResp.Code {
			case "ConditionalRequestConflict", "OperationAborted":
				return true
			}
		}
	}
	return false
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	switch resp.Code {
	case "SlowDown", "RequestTimeout", "InternalError":
		return true
	}
	return false
}
