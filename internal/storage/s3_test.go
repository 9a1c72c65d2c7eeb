package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) HeadObject(_ context.Context, input *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Configured(t *testing.T) {
	tests := []struct {
		cfg  S3Config
		want bool
	}{
		{S3Config{}, false},
		{S3Config{Bucket: "b"}, false},
		{S3Config{Bucket: "b", AccessKey: "a"}, false},
		{S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Configured(); got != tt.want {
			t.Errorf("Configured(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestS3RoundTrip(t *testing.T) {
	mock := newMockS3()
	s := &S3{client: mock, bucket: "labwise"}
	ctx := context.Background()

	data := []byte("snapshot payload")
	if err := s.Write(ctx, "backup-x.backup", data); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, err := s.Stat(ctx, "backup-x.backup")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}

	got, err := s.Read(ctx, "backup-x.backup")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read = %q, want %q", got, data)
	}

	if err := s.Delete(ctx, "backup-x.backup"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Read(ctx, "backup-x.backup"); err == nil {
		t.Error("read after delete should fail")
	}
}

func TestS3KeyPrefix(t *testing.T) {
	mock := newMockS3()
	s := &S3{client: mock, bucket: "labwise", prefix: "backups/prod"}
	ctx := context.Background()

	if err := s.Write(ctx, "backup-x.backup", []byte("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := mock.objects["backups/prod/backup-x.backup"]; !ok {
		t.Errorf("object stored under wrong key: %v", keysOf(mock.objects))
	}
}

func TestS3WriteError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	s := &S3{client: mock, bucket: "labwise"}

	if err := s.Write(context.Background(), "backup-x.backup", []byte("data")); err == nil {
		t.Error("expected write error")
	}
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
