package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/titlevault/pkg/util/resiliency"
)

func TestFSStore_PutGetExists(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	doc := []byte("sale deed, plot 14")
	hash, err := s.Put(ctx, "deed.pdf", doc)
	require.NoError(t, err)
	want, _ := Sum(doc)
	assert.Equal(t, want, hash)

	again, err := s.Put(ctx, "other-name.pdf", doc)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	ok, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	missing, _ := Sum([]byte("nothing"))
	ok, err = s.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "empty", nil)
	require.ErrorIs(t, err, ErrEmpty)

	for _, h := range []string{"", "md5:abc", "sha256:zz", "sha256:../../etc/passwd"} {
		_, err := s.Get(ctx, h)
		require.ErrorIs(t, err, ErrInvalidHash, h)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newS3Store(fake, S3StoreConfig{Bucket: "titles", Prefix: "docs/"})

	doc := []byte("mutation register extract")
	hash, err := s.Put(ctx, "extract.pdf", doc)
	require.NoError(t, err)
	_, raw := Sum(doc)
	assert.Contains(t, fake.objects, "docs/"+raw+".blob")

	_, err = s.Put(ctx, "extract.pdf", doc)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.puts)

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	missing, _ := Sum([]byte("x"))
	_, err = s.Get(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)
	ok, err := s.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func pinataServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	pinned := &sync.Map{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pinning/pinFileToIPFS", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		file, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "deed.pdf", hdr.Filename)
		pinned.Store(testCID, data)
		_ = json.NewEncoder(w).Encode(pinResponse{IpfsHash: testCID, PinSize: int64(len(data))})
	})
	mux.HandleFunc("/ipfs/{cid}", func(w http.ResponseWriter, r *http.Request) {
		data, ok := pinned.Load(r.PathValue("cid"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data.([]byte))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, pinned
}

func newTestPinata(t *testing.T, url, secret string) *PinataStore {
	t.Helper()
	s, err := NewPinataStore(PinataConfig{APIKey: "key", APISecret: secret, APIURL: url, GatewayURL: url})
	require.NoError(t, err)
	return s.WithClient(resiliency.NewEnhancedClient("pinata-test", time.Second).WithRetries(0, time.Millisecond))
}

func TestPinataStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, _ := pinataServer(t)
	s := newTestPinata(t, srv.URL, "secret")

	doc := []byte("%PDF-1.7 title deed")
	cid, err := s.Put(ctx, "deed.pdf", doc)
	require.NoError(t, err)
	assert.Equal(t, testCID, cid)

	ok, err := s.Exists(ctx, cid)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	other := "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	ok, err = s.Exists(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Get(ctx, other)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPinataStore_Errors(t *testing.T) {
	ctx := context.Background()
	srv, _ := pinataServer(t)

	s := newTestPinata(t, srv.URL, "wrong")
	_, err := s.Put(ctx, "deed.pdf", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = s.Get(ctx, "../admin")
	require.ErrorIs(t, err, ErrInvalidHash)

	_, err = NewPinataStore(PinataConfig{APIKey: "key"})
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	st, err := New(ctx, Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, st)

	st, err = New(ctx, Config{Kind: KindIPFS, PinataAPIKey: "k", PinataAPISecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &PinataStore{}, st)

	_, err = New(ctx, Config{Kind: KindS3})
	require.Error(t, err)

	_, err = New(ctx, Config{Kind: KindGCS})
	require.Error(t, err)

	_, err = New(ctx, Config{Kind: "tape"})
	require.Error(t, err)
}
