package receipt

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockS3 keeps objects in memory, keyed by bucket/key
type mockS3 struct {
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	delete(m.objects, aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3Storage", func() {
	var (
		client  *mockS3
		storage *S3Storage
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockS3{objects: make(map[string][]byte)}
		storage = newS3StorageWithClient(client, "receipts-bucket", "receipts")
	})

	Describe("Put", func() {
		It("uploads under the prefixed key", func() {
			Expect(storage.Put(ctx, "abc", []byte("image"))).To(Succeed())
			Expect(client.objects).To(HaveKeyWithValue("receipts-bucket/receipts/abc", []byte("image")))
		})

		When("there is no prefix", func() {
			BeforeEach(func() {
				storage = newS3StorageWithClient(client, "receipts-bucket", "")
			})

			It("uses the id as the key", func() {
				Expect(storage.Put(ctx, "abc", []byte("image"))).To(Succeed())
				Expect(client.objects).To(HaveKey("receipts-bucket/abc"))
			})
		})

		When("the upload fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("access denied")
				client.putErr = setupErr
			})

			It("returns the error", func() {
				Expect(storage.Put(ctx, "abc", []byte("image"))).To(MatchError(setupErr))
			})
		})
	})

	Describe("Get", func() {
		When("the object exists", func() {
			BeforeEach(func() {
				client.objects["receipts-bucket/receipts/abc"] = []byte("image")
			})

			It("returns its contents", func() {
				Expect(storage.Get(ctx, "abc")).To(Equal([]byte("image")))
			})
		})

		When("the object does not exist", func() {
			It("returns ErrBlobNotFound", func() {
				_, err := storage.Get(ctx, "missing")
				Expect(err).To(MatchError(ErrBlobNotFound))
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			client.objects["receipts-bucket/receipts/abc"] = []byte("image")
		})

		It("removes the object", func() {
			Expect(storage.Delete(ctx, "abc")).To(Succeed())
			Expect(client.objects).To(BeEmpty())
		})

		When("the delete fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("access denied")
				client.deleteErr = setupErr
			})

			It("returns the error", func() {
				Expect(storage.Delete(ctx, "abc")).To(MatchError(setupErr))
			})
		})
	})
})
