package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"studio_engine/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func TestPutAndGetObject(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	svc := NewStorageServiceWithClient(fake, "reports-bucket")

	key := ReportKey(models.PeriodKey{Year: 2025, Month: 3, ReportType: models.ReportMonthly})
	assert.True(t, strings.HasPrefix(key, "reports/2025/03/monthly/"))
	assert.True(t, strings.HasSuffix(key, ".xlsx"))

	require.NoError(t, svc.PutObject(context.Background(), key, []byte("workbook")))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fake.types[key])

	got, err := svc.GetObject(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "workbook", string(got))
}

func TestReportKeysAreUnique(t *testing.T) {
	k := models.PeriodKey{Year: 2025, Month: 11, ReportType: models.ReportAnnual}
	assert.NotEqual(t, ReportKey(k), ReportKey(k))
}
