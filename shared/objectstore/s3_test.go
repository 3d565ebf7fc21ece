package objectstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestClient_Get(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{"inputs/1/2.wav": []byte("RIFF")}}
	client := newClient(api, Config{Bucket: "songs", Region: "us-east-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, err := client.Get(context.Background(), "inputs/1/2.wav")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	_, err = client.Get(context.Background(), "inputs/1/3.wav")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want string
	}{
		{
			name: "aws virtual hosted",
			cfg:  Config{Bucket: "chickenify", Region: "eu-west-1"},
			key:  "outputs/3/9.wav",
			want: "https://chickenify.s3.eu-west-1.amazonaws.com/outputs/3/9.wav",
		},
		{
			name: "custom endpoint path style",
			cfg:  Config{Bucket: "chickenify", Region: "us-east-1", Endpoint: "http://minio:9000/", UsePathStyle: true},
			key:  "outputs/3/9.wav",
			want: "http://minio:9000/chickenify/outputs/3/9.wav",
		},
		{
			name: "custom endpoint virtual hosted",
			cfg:  Config{Bucket: "chickenify", Region: "auto", Endpoint: "https://storage.example.com"},
			key:  "outputs/3/9.wav",
			want: "https://chickenify.storage.example.com/outputs/3/9.wav",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectURL(tt.cfg, tt.key))
		})
	}
}

func TestConfig_Configured(t *testing.T) {
	full := Config{Bucket: "b", Region: "r", AccessKey: "k", SecretKey: "s"}
	assert.True(t, full.Configured())

	missing := full
	missing.SecretKey = ""
	assert.False(t, missing.Configured())

	_, err := NewClient(missing, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 not configured")
}
