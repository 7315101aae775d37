package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/jddeal/go-sigmet/sigmet"
)

// loadVolume decodes a raw product volume from a local file or an
// s3://bucket/key object. Whole-file compression is unwrapped either
// way.
func loadVolume(path string) (*sigmet.Volume, error) {
	cfg := sigmet.DecodeConfig{Strict: strictMode()}
	logrus.Info(color.CyanString("decoding "), path)

	if strings.HasPrefix(path, "s3://") {
		return loadVolumeS3(path, cfg)
	}
	return sigmet.Open(path, cfg)
}

func loadVolumeS3(path string, cfg sigmet.DecodeConfig) (*sigmet.Volume, error) {
	rest := strings.TrimPrefix(path, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("%s is not an s3://bucket/key path: %w", path, sigmet.ErrBadArgument)
	}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.AnonymousCredentials,
		Region:      aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, sigmet.ErrIOFailure)
	}
	svc := s3.New(sess)

	obj, err := svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %s: %w", path, err, sigmet.ErrIOFailure)
	}
	defer obj.Body.Close()

	r, err := sigmet.NewReader(obj.Body)
	if err != nil {
		return nil, err
	}
	return sigmet.Decode(r, cfg)
}
