package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectAPIFake struct {
	putBucket string
	putKey    string
	putBody   string
	putErr    error
	getBody   string
	getErr    error
}

func (f *objectAPIFake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.putBucket = *in.Bucket
	f.putKey = *in.Key
	f.putBody = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func (f *objectAPIFake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func TestSavePutsObject(t *testing.T) {
	api := &objectAPIFake{}
	s := &Storage{client: api, bucket: "recordings"}

	err := s.Save(context.Background(), "rec-1_breath.wav", strings.NewReader("RIFFdata"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if api.putBucket != "recordings" {
		t.Fatalf("expected bucket recordings, got %s", api.putBucket)
	}
	if api.putKey != "rec-1_breath.wav" {
		t.Fatalf("expected key rec-1_breath.wav, got %s", api.putKey)
	}
	if api.putBody != "RIFFdata" {
		t.Fatalf("expected body RIFFdata, got %q", api.putBody)
	}
}

func TestSavePropagatesError(t *testing.T) {
	api := &objectAPIFake{putErr: errors.New("access denied")}
	s := &Storage{client: api, bucket: "recordings"}

	if err := s.Save(context.Background(), "rec-1.wav", strings.NewReader("RIFF")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenReadsObject(t *testing.T) {
	api := &objectAPIFake{getBody: "RIFFdata"}
	s := &Storage{client: api, bucket: "recordings"}

	rc, err := s.Open(context.Background(), "rec-1_breath.wav")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(raw) != "RIFFdata" {
		t.Fatalf("expected RIFFdata, got %q", raw)
	}
}

func TestOpenPropagatesError(t *testing.T) {
	api := &objectAPIFake{getErr: errors.New("no such key")}
	s := &Storage{client: api, bucket: "recordings"}

	if _, err := s.Open(context.Background(), "missing.wav"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), "", "us-east-1", ""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
