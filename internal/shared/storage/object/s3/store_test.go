package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"invoicing-backend/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "acme/INV-1.pdf", want: "acme/INV-1.pdf"},
		{name: "simple prefix", prefix: "artifacts", key: "acme/INV-1.pdf", want: "artifacts/acme/INV-1.pdf"},
		{name: "prefix trailing slash", prefix: "artifacts/", key: "acme/INV-1.pdf", want: "artifacts/acme/INV-1.pdf"},
		{name: "prefix and key slashes", prefix: "/artifacts/", key: "/acme/INV-1.pdf", want: "artifacts/acme/INV-1.pdf"},
		{name: "nested prefix", prefix: "prod/artifacts", key: "acme/INV-1.pdf", want: "prod/artifacts/acme/INV-1.pdf"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func newFakeStore(opts Options) (*Store, *fakeS3, *time.Duration) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newStore(fake, opts)
	var gotTTL time.Duration
	s.presign = func(ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (string, error) {
		gotTTL = ttl
		return "https://bucket.example/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc", nil
	}
	return s, fake, &gotTTL
}

func TestSignedURLMissingObject(t *testing.T) {
	s, _, _ := newFakeStore(Options{Bucket: "b"})
	_, err := s.SignedURL(context.Background(), "acme/INV-1.pdf", time.Hour)
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutThenSignedURLClampsTTL(t *testing.T) {
	s, fake, gotTTL := newFakeStore(Options{Bucket: "b", Prefix: "artifacts", KMSKeyID: "kms-1"})
	ctx := context.Background()

	n, err := s.Put(ctx, "acme/INV-1.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes, got %d", n)
	}
	put := fake.puts[0]
	if aws.ToString(put.Key) != "artifacts/acme/INV-1.pdf" {
		t.Fatalf("unexpected object key %q", aws.ToString(put.Key))
	}
	if put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms || aws.ToString(put.SSEKMSKeyId) != "kms-1" {
		t.Fatalf("expected kms encryption, got %v", put.ServerSideEncryption)
	}

	u, err := s.SignedURL(ctx, "acme/INV-1.pdf", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	if !strings.Contains(u, "artifacts/acme/INV-1.pdf") {
		t.Fatalf("unexpected url %q", u)
	}
	if *gotTTL != MaxPresignTTL {
		t.Fatalf("expected ttl clamped to %s, got %s", MaxPresignTTL, *gotTTL)
	}
}

func TestOpenMapsNoSuchKey(t *testing.T) {
	s, _, _ := newFakeStore(Options{Bucket: "b"})
	_, err := s.Open(context.Background(), "acme/nope.pdf")
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDefaultEncryptionIsAES256(t *testing.T) {
	s, fake, _ := newFakeStore(Options{Bucket: "b"})
	if _, err := s.Put(context.Background(), "acme/INV-2.pdf", "application/pdf", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if fake.puts[0].ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("expected AES256, got %v", fake.puts[0].ServerSideEncryption)
	}
}
