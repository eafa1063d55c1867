package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFSStore(t.TempDir())

	_, err := s.Get(ctx, "encoders.json")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "nested/encoders.json", []byte(`{"a":1}`)))
	got, err := s.Get(ctx, "nested/encoders.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.Error(t, s.Put(ctx, "../escape", []byte("x")))
}

func TestMemStoreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	buf := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", buf))
	buf[0] = 'z'
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

type fakeS3 struct {
	objs map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objs[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objs[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePrefixAndNotFound(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objs: map[string][]byte{}}
	s := NewS3StoreWithClient(fake, "bucket", "artifacts/")

	require.NoError(t, s.Put(ctx, "scaler.json", []byte("{}")))
	_, ok := fake.objs["artifacts/scaler.json"]
	assert.True(t, ok, "prefix should be joined with a single slash")

	got, err := s.Get(ctx, "scaler.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	_, err = s.Get(ctx, "missing.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "engagelens:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "encoders.json")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "encoders.json", []byte(`{"version":1}`)))
	got, err := s.Get(ctx, "encoders.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))

	raw, err := mr.Get("engagelens:encoders.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, raw)
	assert.False(t, mr.Exists("encoders.json"))

	_, err = NewRedisStore(ctx, "not-a-url", "")
	require.Error(t, err)
}
