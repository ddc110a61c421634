package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("receipt", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["receipt"][0]
}

func TestUploadReceipt(t *testing.T) {
	putter := &fakePutter{}
	rs := &R2ReceiptStore{Client: putter, Bucket: "receipts", CDNBaseURL: "https://cdn.example.com"}

	url, err := rs.UploadReceipt(context.Background(), fileHeader(t, "proof.png", []byte("png-bytes")), "receipts/u1/r1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/receipts/u1/r1.png", url)
	assert.Equal(t, "receipts", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "receipts/u1/r1.png", aws.ToString(putter.input.Key))
	assert.Equal(t, int64(9), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, []byte("png-bytes"), putter.body)
}

func TestUploadReceipt_Error(t *testing.T) {
	rs := &R2ReceiptStore{Client: &fakePutter{err: errors.New("denied")}, Bucket: "b", CDNBaseURL: "https://cdn"}
	_, err := rs.UploadReceipt(context.Background(), fileHeader(t, "a.pdf", []byte("x")), "k")
	assert.ErrorContains(t, err, "denied")
}
