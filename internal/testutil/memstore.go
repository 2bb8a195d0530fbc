package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// MemoryStore is an in-memory store.ObjectStore with multipart semantics
// close to S3: parts are kept per upload until completion or abort, and
// complete-multipart requires ascending part numbers with matching ETags.
//
// Hooks run before the corresponding operation touches any state and may
// block or fail it. Counters record every call, including failed ones.
type MemoryStore struct {
	BeforeInitiate   func(ctx context.Context) error
	BeforeUploadPart func(ctx context.Context, partNumber int) error
	BeforeGetRange   func(ctx context.Context, offset, length int64) error
	BeforeComplete   func(ctx context.Context) error
	BeforeAbort      func(ctx context.Context) error

	mu        sync.Mutex
	objects   map[string]memObject
	uploads   map[string]*memUpload
	nextID    int
	initiates int
	parts     int
	completes int
	aborts    int
	puts      int
	gets      int
}

type memObject struct {
	data        []byte
	etag        string
	contentType string
	modified    time.Time
}

type memUpload struct {
	bucket, key string
	input       store.UploadInput
	parts       map[int][]byte
}

var _ store.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		uploads: make(map[string]*memUpload),
	}
}

// Put stores an object directly.
func (s *MemoryStore) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = memObject{data: bytes.Clone(data), etag: etagOf(data), modified: time.Now()}
}

// Object returns the stored object data.
func (s *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	return o.data, ok
}

// ContentType returns the content type an object was stored with.
func (s *MemoryStore) ContentType(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[bucket+"/"+key].contentType
}

// OpenUploads returns the number of multipart uploads neither completed nor aborted.
func (s *MemoryStore) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// UploadedParts returns the part numbers stored for an open upload.
func (s *MemoryStore) UploadedParts(uploadID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return nil
	}
	numbers := make([]int, 0, len(u.parts))
	for n := range u.parts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Calls reports how often each operation was invoked.
type Calls struct {
	Initiates int
	Parts     int
	Completes int
	Aborts    int
	Puts      int
	Gets      int
}

// Calls returns the call counters.
func (s *MemoryStore) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Calls{
		Initiates: s.initiates,
		Parts:     s.parts,
		Completes: s.completes,
		Aborts:    s.aborts,
		Puts:      s.puts,
		Gets:      s.gets,
	}
}

// InitiateMultipartUpload starts a new upload.
func (s *MemoryStore) InitiateMultipartUpload(ctx context.Context, bucket, key string, input store.UploadInput) (string, error) {
	s.mu.Lock()
	s.initiates++
	s.mu.Unlock()

	if s.BeforeInitiate != nil {
		if err := s.BeforeInitiate(ctx); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.uploads[id] = &memUpload{bucket: bucket, key: key, input: input, parts: make(map[int][]byte)}
	return id, nil
}

// UploadPart stores a part of an open upload.
func (s *MemoryStore) UploadPart(
	ctx context.Context,
	_, _, uploadID string,
	partNumber int,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	s.mu.Lock()
	s.parts++
	s.mu.Unlock()

	if s.BeforeUploadPart != nil {
		if err := s.BeforeUploadPart(ctx, partNumber); err != nil {
			return "", err
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", apiError("IncompleteBody", fmt.Sprintf("read %d bytes, expected %d", len(data), size))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", apiError("NoSuchUpload", "upload does not exist")
	}
	u.parts[partNumber] = data
	return etagOf(data), nil
}

// CompleteMultipartUpload assembles the object from the listed parts.
func (s *MemoryStore) CompleteMultipartUpload(
	ctx context.Context,
	_, _, uploadID string,
	parts []store.CompletedPart,
) (store.ObjectInfo, error) {
	s.mu.Lock()
	s.completes++
	s.mu.Unlock()

	if s.BeforeComplete != nil {
		if err := s.BeforeComplete(ctx); err != nil {
			return store.ObjectInfo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return store.ObjectInfo{}, apiError("NoSuchUpload", "upload does not exist")
	}

	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return store.ObjectInfo{}, apiError("InvalidPartOrder", "parts must be in ascending order")
		}
		data, ok := u.parts[p.PartNumber]
		if !ok || etagOf(data) != p.ETag {
			return store.ObjectInfo{}, apiError("InvalidPart", fmt.Sprintf("part %d is missing", p.PartNumber))
		}
		buf.Write(data)
	}

	obj := memObject{
		data:        buf.Bytes(),
		etag:        etagOf(buf.Bytes()),
		contentType: u.input.ContentType,
		modified:    time.Now(),
	}
	s.objects[u.bucket+"/"+u.key] = obj
	delete(s.uploads, uploadID)
	return store.ObjectInfo{Key: u.key, Size: int64(len(obj.data)), ETag: obj.etag}, nil
}

// AbortMultipartUpload discards an open upload.
func (s *MemoryStore) AbortMultipartUpload(ctx context.Context, _, _, uploadID string) error {
	s.mu.Lock()
	s.aborts++
	s.mu.Unlock()

	if s.BeforeAbort != nil {
		if err := s.BeforeAbort(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uploads[uploadID]; !ok {
		return apiError("NoSuchUpload", "upload does not exist")
	}
	delete(s.uploads, uploadID)
	return nil
}

// GetObjectRange returns a byte range of a stored object.
func (s *MemoryStore) GetObjectRange(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()

	if s.BeforeGetRange != nil {
		if err := s.BeforeGetRange(ctx, offset, length); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, apiError("NoSuchKey", "object does not exist")
	}
	if offset < 0 || offset >= int64(len(o.data)) {
		return nil, apiError("InvalidRange", "range not satisfiable")
	}
	end := min(offset+length, int64(len(o.data)))
	return io.NopCloser(bytes.NewReader(o.data[offset:end])), nil
}

// PutObject stores an object in a single request.
func (s *MemoryStore) PutObject(
	_ context.Context,
	bucket, key string,
	body io.ReadSeeker,
	size int64,
	input store.UploadInput,
) (store.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return store.ObjectInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if int64(len(data)) != size {
		return store.ObjectInfo{}, apiError("IncompleteBody", fmt.Sprintf("read %d bytes, expected %d", len(data), size))
	}
	obj := memObject{data: data, etag: etagOf(data), contentType: input.ContentType, modified: time.Now()}
	s.objects[bucket+"/"+key] = obj
	return store.ObjectInfo{Key: key, Size: size, ETag: obj.etag, ContentType: input.ContentType}, nil
}

// HeadObject returns the metadata of a stored object.
func (s *MemoryStore) HeadObject(_ context.Context, bucket, key string) (store.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	if !ok {
		return store.ObjectInfo{}, apiError("NotFound", "object does not exist")
	}
	return store.ObjectInfo{
		Key:          key,
		Size:         int64(len(o.data)),
		ETag:         o.etag,
		ContentType:  o.contentType,
		LastModified: o.modified,
	}, nil
}

// ListObjects lists the objects of bucket under prefix in key order.
func (s *MemoryStore) ListObjects(_ context.Context, bucket, prefix string) ([]store.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.ObjectInfo
	for name, o := range s.objects {
		b, key, _ := strings.Cut(name, "/")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, store.ObjectInfo{Key: key, Size: int64(len(o.data)), ETag: o.etag, LastModified: o.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func apiError(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg}
}

// MockAPIError returns a storage service error with the given code.
func MockAPIError(code string) error {
	return apiError(code, code)
}
