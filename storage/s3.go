package storage

import (
	"bytes"
	"context"
	"fmt"

	"paper-atlas/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für den PDF-Blob-Store.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// PDFKey bildet den kanonischen Storage-Key einer PDF:
// {collectionID}/{paperID}.pdf
func PDFKey(collectionID uint, paperID string) string {
	return fmt.Sprintf("%d/%s.pdf", collectionID, paperID)
}

// PDFStore bindet den S3-Client an einen Bucket.
type PDFStore struct {
	Client *s3.Client
	Bucket string
}

// NewPDFStore erstellt den PDF-Blob-Store aus der Konfiguration.
func NewPDFStore(cfg *config.Config) (*PDFStore, error) {
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	return &PDFStore{Client: client, Bucket: cfg.S3Bucket}, nil
}

// UploadPDF lädt eine PDF hoch und gibt den Key zurück.
func (ps *PDFStore) UploadPDF(ctx context.Context, key string, data []byte) (string, error) {
	return UploadPDF(ctx, ps.Client, ps.Bucket, key, data)
}

// DownloadPDF lädt eine PDF anhand ihres Keys.
func (ps *PDFStore) DownloadPDF(ctx context.Context, key string) ([]byte, error) {
	return DownloadPDF(ctx, ps.Client, ps.Bucket, key)
}

// DeletePDF entfernt eine PDF.
func (ps *PDFStore) DeletePDF(ctx context.Context, key string) error {
	return DeletePDF(ctx, ps.Client, ps.Bucket, key)
}

// UploadPDF lädt eine PDF in den Blob-Store hoch und gibt den Key zurück.
func UploadPDF(ctx context.Context, client *s3.Client, bucket, key string, data []byte) (string, error) {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// DownloadPDF lädt eine PDF anhand ihres Keys aus dem Blob-Store.
func DownloadPDF(ctx context.Context, client *s3.Client, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeletePDF entfernt eine PDF aus dem Blob-Store.
func DeletePDF(ctx context.Context, client *s3.Client, bucket, key string) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}
