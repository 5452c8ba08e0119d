package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"main/config"
)

// StorageClient issues presigned URLs against an S3-compatible object store
// and lists stored objects. The server never proxies file bytes; clients
// upload and download directly with the presigned URLs.
type StorageClient struct {
	endpoint   string
	region     string
	bucket     string
	accessKey  string
	secretKey  string
	httpClient *http.Client
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// PresignedUpload is a browser-postable upload grant: URL plus the form
// fields the policy requires.
type PresignedUpload struct {
	URL    string
	Fields map[string]string
}

func NewStorageClient(cfg *config.Config) *StorageClient {
	return &StorageClient{
		endpoint:   strings.TrimSuffix(cfg.StorageEndpoint, "/"),
		region:     cfg.StorageRegion,
		bucket:     cfg.StorageBucket,
		accessKey:  cfg.StorageAccessKey,
		secretKey:  cfg.StorageSecretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// PresignDownload returns a time-limited GET URL for one object key.
func (s *StorageClient) PresignDownload(key string, ttl time.Duration) (string, error) {
	return s.presignGet("/"+s.bucket+"/"+key, nil, ttl)
}

// PresignUpload returns a POST policy upload grant. The policy caps the size
// at maxBytes, pins the key, and constrains the content type to the given
// prefix.
func (s *StorageClient) PresignUpload(key, contentType, contentTypePrefix string, maxBytes int64, ttl time.Duration) (*PresignedUpload, error) {
	if s.secretKey == "" {
		return nil, fmt.Errorf("storage credentials are not set")
	}

	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	shortDate := now.Format("20060102")
	credential := fmt.Sprintf("%s/%s/%s/s3/aws4_request", s.accessKey, shortDate, s.region)

	policy := map[string]interface{}{
		"expiration": now.Add(ttl).Format("2006-01-02T15:04:05.000Z"),
		"conditions": []interface{}{
			map[string]string{"bucket": s.bucket},
			map[string]string{"key": key},
			[]interface{}{"content-length-range", 0, maxBytes},
			[]interface{}{"starts-with", "$Content-Type", contentTypePrefix},
			map[string]string{"x-amz-algorithm": "AWS4-HMAC-SHA256"},
			map[string]string{"x-amz-credential": credential},
			map[string]string{"x-amz-date": amzDate},
		},
	}

	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload policy: %w", err)
	}
	policyB64 := base64.StdEncoding.EncodeToString(policyJSON)
	signature := hex.EncodeToString(hmacSHA256(s.signingKey(shortDate), policyB64))

	return &PresignedUpload{
		URL: s.endpoint + "/" + s.bucket,
		Fields: map[string]string{
			"key":              key,
			"Content-Type":     contentType,
			"policy":           policyB64,
			"x-amz-algorithm":  "AWS4-HMAC-SHA256",
			"x-amz-credential": credential,
			"x-amz-date":       amzDate,
			"x-amz-signature":  signature,
		},
	}, nil
}

// List returns the objects under a key prefix.
func (s *StorageClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	query := url.Values{}
	query.Set("list-type", "2")
	query.Set("prefix", prefix)

	listURL, err := s.presignGet("/"+s.bucket, query, time.Minute)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage list returned %d", resp.StatusCode)
	}

	var listing struct {
		Contents []struct {
			Key          string    `xml:"Key"`
			Size         int64     `xml:"Size"`
			LastModified time.Time `xml:"LastModified"`
		} `xml:"Contents"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode storage listing: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(listing.Contents))
	for _, item := range listing.Contents {
		objects = append(objects, ObjectInfo{
			Key:          item.Key,
			Size:         item.Size,
			LastModified: item.LastModified,
		})
	}
	return objects, nil
}

// presignGet builds a SigV4 query-presigned GET URL (path-style addressing).
func (s *StorageClient) presignGet(path string, extraQuery url.Values, ttl time.Duration) (string, error) {
	if s.secretKey == "" {
		return "", fmt.Errorf("storage credentials are not set")
	}

	endpointURL, err := url.Parse(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}

	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	shortDate := now.Format("20060102")
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", shortDate, s.region)

	query := url.Values{}
	for k, vs := range extraQuery {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	query.Set("X-Amz-Credential", s.accessKey+"/"+scope)
	query.Set("X-Amz-Date", amzDate)
	query.Set("X-Amz-Expires", fmt.Sprintf("%d", int(ttl.Seconds())))
	query.Set("X-Amz-SignedHeaders", "host")

	canonicalPath := uriEncodePath(path)
	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		canonicalPath,
		query.Encode(),
		"host:" + endpointURL.Host + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	digest := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(digest[:]),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s.signingKey(shortDate), stringToSign))
	query.Set("X-Amz-Signature", signature)

	return s.endpoint + canonicalPath + "?" + query.Encode(), nil
}

func (s *StorageClient) signingKey(shortDate string) []byte {
	key := hmacSHA256([]byte("AWS4"+s.secretKey), shortDate)
	key = hmacSHA256(key, s.region)
	key = hmacSHA256(key, "s3")
	return hmacSHA256(key, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// uriEncodePath percent-encodes each path segment the way SigV4 expects,
// leaving the separators alone.
func uriEncodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(segment), "+", "%20")
	}
	return strings.Join(segments, "/")
}
