package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	blobsdk "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"pkt.systems/svckit/setting"
)

func init() {
	Register(func(_ context.Context, u *setting.URL) (Store, error) {
		container, prefix := u.SplitPath()
		return NewAzure(AzureConfig{
			Account:    u.Host(),
			Container:  container,
			Prefix:     prefix,
			Endpoint:   u.String("endpoint", ""),
			AccountKey: u.Secret("account-key", "AZURE_STORAGE_KEY", "AZURE_STORAGE_ACCOUNT_KEY"),
			SASToken:   u.Secret("sas", "AZURE_STORAGE_SAS_TOKEN"),
		})
	}, "azure", "azblob")
}

// AzureConfig controls the Azure Blob Storage driver. Either AccountKey or
// SASToken must be supplied.
type AzureConfig struct {
	Account    string
	AccountKey string
	SASToken   string
	Container  string
	Prefix     string
	Endpoint   string
}

// Azure implements Store on Azure Blob Storage. Conditional writes use
// If-Match/If-None-Match access conditions.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzure constructs a store and ensures the container exists.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("blob: azure account is required")
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("blob: azure container is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	var (
		client *azblob.Client
		err    error
	)
	if cfg.SASToken != "" {
		endpointWithSAS, serr := appendSASToken(endpoint, cfg.SASToken)
		if serr != nil {
			return nil, serr
		}
		client, err = azblob.NewClientWithNoCredential(endpointWithSAS, nil)
	} else {
		if cfg.AccountKey == "" {
			return nil, fmt.Errorf("blob: azure account key or SAS token required")
		}
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("blob: azure credentials: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: create azure client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil {
		if !isContainerExists(err) {
			return nil, fmt.Errorf("blob: create azure container: %w", err)
		}
	}
	return &Azure{
		client:    client,
		container: cfg.Container,
		prefix:    strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func appendSASToken(endpoint, sas string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("blob: parse azure endpoint: %w", err)
	}
	sas = strings.TrimPrefix(sas, "?")
	if u.RawQuery != "" {
		u.RawQuery = u.RawQuery + "&" + sas
	} else {
		u.RawQuery = sas
	}
	return u.String(), nil
}

func (a *Azure) blobName(key string) string {
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

func (a *Azure) Get(ctx context.Context, key string) (*Object, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(key), nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, a.wrapError(err, "blob: azure get")
	}
	info := Info{Key: key}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	if resp.LastModified != nil {
		info.ModTime = *resp.LastModified
	}
	return &Object{Info: info, Body: resp.Body}, nil
}

func (a *Azure) Stat(ctx context.Context, key string) (Info, error) {
	props, err := a.client.ServiceClient().
		NewContainerClient(a.container).
		NewBlobClient(a.blobName(key)).
		GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return Info{}, ErrNotFound
		}
		return Info{}, a.wrapError(err, "blob: azure stat")
	}
	info := Info{Key: key}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		info.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		info.ModTime = *props.LastModified
	}
	return info, nil
}

func (a *Azure) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (Info, error) {
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.ContentType != "" {
		uploadOpts.HTTPHeaders = &blobsdk.HTTPHeaders{
			BlobContentType: to.Ptr(opts.ContentType),
		}
	}
	if opts.ExpectedETag != "" {
		uploadOpts.AccessConditions = &blobsdk.AccessConditions{
			ModifiedAccessConditions: &blobsdk.ModifiedAccessConditions{
				IfMatch: to.Ptr(azcore.ETag(opts.ExpectedETag)),
			},
		}
	} else if opts.IfNotExists {
		uploadOpts.AccessConditions = &blobsdk.AccessConditions{
			ModifiedAccessConditions: &blobsdk.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETag("*")),
			},
		}
	}
	resp, err := a.client.UploadStream(ctx, a.container, a.blobName(key), body, uploadOpts)
	if err != nil {
		if isAzurePreconditionFailed(err) {
			return Info{}, ErrCASMismatch
		}
		return Info{}, a.wrapError(err, "blob: azure put")
	}
	info := Info{Key: key, ContentType: opts.ContentType}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.ModTime = *resp.LastModified
	}
	return info, nil
}

func (a *Azure) Delete(ctx context.Context, key string, opts DeleteOptions) error {
	deleteOpts := &azblob.DeleteBlobOptions{}
	if opts.ExpectedETag != "" {
		deleteOpts.AccessConditions = &blobsdk.AccessConditions{
			ModifiedAccessConditions: &blobsdk.ModifiedAccessConditions{
				IfMatch: to.Ptr(azcore.ETag(opts.ExpectedETag)),
			},
		}
	}
	_, err := a.client.DeleteBlob(ctx, a.container, a.blobName(key), deleteOpts)
	if err != nil {
		if isAzureNotFound(err) {
			if opts.ExpectedETag != "" {
				return ErrNotFound
			}
			return nil
		}
		if isAzurePreconditionFailed(err) {
			return ErrCASMismatch
		}
		return a.wrapError(err, "blob: azure delete")
	}
	return nil
}

func (a *Azure) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	listOpts := &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(a.blobName(opts.Prefix)),
	}
	if opts.Limit > 0 {
		listOpts.MaxResults = to.Ptr(int32(opts.Limit))
	}
	// Azure continuation markers are opaque tokens, not keys, so StartAfter
	// is applied here by skipping names at or before it.
	startAfter := ""
	if opts.StartAfter != "" {
		startAfter = a.blobName(opts.StartAfter)
	}
	var res ListResult
	pager := a.client.NewListBlobsFlatPager(a.container, listOpts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return ListResult{}, a.wrapError(err, "blob: azure list")
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if startAfter != "" && *item.Name <= startAfter {
				continue
			}
			if opts.Limit > 0 && len(res.Objects) >= opts.Limit {
				res.Truncated = true
				res.NextStartAfter = res.Objects[len(res.Objects)-1].Key
				return res, nil
			}
			key := *item.Name
			if a.prefix != "" {
				key = strings.TrimPrefix(key, a.prefix+"/")
			}
			info := Info{Key: key}
			if item.Properties != nil {
				if item.Properties.ETag != nil {
					info.ETag = string(*item.Properties.ETag)
				}
				if item.Properties.ContentLength != nil {
					info.Size = *item.Properties.ContentLength
				}
				if item.Properties.ContentType != nil {
					info.ContentType = *item.Properties.ContentType
				}
				if item.Properties.LastModified != nil {
					info.ModTime = *item.Properties.LastModified
				}
			}
			res.Objects = append(res.Objects, info)
		}
	}
	return res, nil
}

// Ping verifies the container is reachable.
func (a *Azure) Ping(ctx context.Context) error {
	_, err := a.client.ServiceClient().
		NewContainerClient(a.container).
		GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("blob: azure ping: %w", err)
	}
	return nil
}

func (a *Azure) Close() error { return nil }

func (a *Azure) wrapError(err error, msg string) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return NewTransientError(wrapped)
		}
	}
	return wrapped
}

func isContainerExists(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict &&
			strings.EqualFold(respErr.ErrorCode, "ContainerAlreadyExists")
	}
	return false
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

func isAzurePreconditionFailed(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusPreconditionFailed ||
			respErr.StatusCode == http.StatusConflict
	}
	return false
}
