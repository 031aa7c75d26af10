package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func TestLocal_StageOpenRemove(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(filepath.Join(t.TempDir(), "uploads"), 0)
	require.NoError(t, err)

	st, err := l.Stage(ctx, "../../etc/My Invoices.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), st.Size)
	assert.Equal(t, "../../etc/My Invoices.csv", st.FileName)
	assert.Equal(t, l.Dir(), filepath.Dir(st.Ref), "staged file must live in the staging dir")
	assert.True(t, strings.HasSuffix(st.Ref, "-My_Invoices.csv"), st.Ref)

	rc, err := l.Open(ctx, st.Ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, l.Remove(ctx, st.Ref))
	_, err = os.Stat(st.Ref)
	assert.True(t, os.IsNotExist(err))

	// second removal is a no-op
	assert.NoError(t, l.Remove(ctx, st.Ref))
}

func TestLocal_TooLarge(t *testing.T) {
	l, err := NewLocal(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = l.Stage(context.Background(), "big.csv", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")
}

func TestLocal_RejectsForeignRef(t *testing.T) {
	l, err := NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "victim.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.ErrorIs(t, l.Remove(context.Background(), outside), ErrForeignRef)
	assert.ErrorIs(t, l.Remove(context.Background(), filepath.Join(l.Dir(), "..", "victim.txt")), ErrForeignRef)
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestObjectName(t *testing.T) {
	a := objectName("report.csv", testNow)
	b := objectName("report.csv", testNow)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "-report.csv"))
	assert.True(t, strings.HasSuffix(objectName("...", testNow), "-upload"))
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_StageOpenRemove(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := NewS3WithClient(client, S3Config{Bucket: "invoices", Prefix: "/staging", MaxBytes: 1024})

	st, err := s.Stage(ctx, "list.csv", strings.NewReader("k\n1\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(st.Ref, "s3://invoices/staging/"), st.Ref)
	assert.Equal(t, int64(4), st.Size)
	assert.Len(t, client.objects, 1)

	rc, err := s.Open(ctx, st.Ref)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "k\n1\n", string(data))

	require.NoError(t, s.Remove(ctx, st.Ref))
	assert.Empty(t, client.objects)

	_, err = s.Open(ctx, "s3://other-bucket/staging/x.csv")
	assert.True(t, errors.Is(err, ErrForeignRef))
}

func TestS3_TooLarge(t *testing.T) {
	client := newFakeS3()
	s := NewS3WithClient(client, S3Config{Bucket: "b", MaxBytes: 2})

	_, err := s.Stage(context.Background(), "x.csv", strings.NewReader("abc"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, client.objects)
}
