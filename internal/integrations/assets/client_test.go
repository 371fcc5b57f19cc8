package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	headErr error
	putErr  error
	gets    []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

const base = "https://cdn.sapore.test"

func mustStore(t *testing.T, api *fakeS3) *Store {
	t.Helper()
	s, err := New(api, "sapore-assets", base+"/")
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "b", "")
	require.Error(t, err)
	_, err = New(newFakeS3(), " ", "")
	require.Error(t, err)

	s, err := New(newFakeS3(), "b", "")
	require.NoError(t, err)
	require.Equal(t, "https://b.s3.amazonaws.com/menu.png", s.URL("menu.png"))
}

func TestStore_URL(t *testing.T) {
	s := mustStore(t, newFakeS3())
	require.Equal(t, base+"/menu/calabresa.png", s.URL("/menu/calabresa.png"))
	require.Equal(t, "https://elsewhere.test/x.png", s.URL("https://elsewhere.test/x.png"))
	require.Equal(t, "", s.URL(" "))
}

func TestStore_PutLookupFetch(t *testing.T) {
	api := newFakeS3()
	s := mustStore(t, api)
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "composites/a__b.png")
	require.NoError(t, err)
	require.False(t, ok)

	url, err := s.Put(ctx, "composites/a__b.png", "image/png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, base+"/composites/a__b.png", url)
	require.Equal(t, "image/png", api.types["composites/a__b.png"])

	found, ok, err := s.Lookup(ctx, "composites/a__b.png")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, url, found)

	data, err := s.Fetch(ctx, "composites/a__b.png")
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)

	// own public URLs are read from the bucket, not over HTTP
	data, err = s.Fetch(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), data)
	require.Equal(t, []string{"composites/a__b.png", "composites/a__b.png"}, api.gets)
}

func TestStore_Errors(t *testing.T) {
	api := newFakeS3()
	s := mustStore(t, api)
	ctx := context.Background()

	_, err := s.Fetch(ctx, "missing.png")
	require.ErrorContains(t, err, "missing.png")
	_, err = s.Fetch(ctx, "")
	require.Error(t, err)
	_, err = s.Put(ctx, " ", "image/png", nil)
	require.Error(t, err)

	api.putErr = errors.New("denied")
	_, err = s.Put(ctx, "k", "image/png", nil)
	require.ErrorContains(t, err, "denied")

	api.headErr = errors.New("throttled")
	_, _, err = s.Lookup(ctx, "k")
	require.ErrorContains(t, err, "throttled")
}

func TestStore_FetchExternalURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	s := mustStore(t, newFakeS3())
	data, err := s.Fetch(context.Background(), srv.URL+"/half.png")
	require.NoError(t, err)
	require.Equal(t, []byte("remote-bytes"), data)

	_, err = s.Fetch(context.Background(), srv.URL+"/missing.png")
	require.ErrorContains(t, err, "404")
}

type fakeTTS struct {
	audio []byte
	err   error
}

func (f fakeTTS) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

func TestSpeech_UploadsAudio(t *testing.T) {
	api := newFakeS3()
	sp, err := NewSpeech(fakeTTS{audio: []byte("mp3")}, mustStore(t, api))
	require.NoError(t, err)
	sp.newID = func() string { return "fixed" }

	url, err := sp.Synthesize(context.Background(), "olá")
	require.NoError(t, err)
	require.Equal(t, base+"/voice/fixed.mp3", url)
	require.Equal(t, "audio/mpeg", api.types["voice/fixed.mp3"])

	sp.tts = fakeTTS{err: errors.New("tts down")}
	_, err = sp.Synthesize(context.Background(), "olá")
	require.ErrorContains(t, err, "tts down")

	_, err = NewSpeech(nil, nil)
	require.Error(t, err)
}
