package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"tradeflow/config"
	"tradeflow/logger"
	"tradeflow/models"
)

// blobSchemaVersion marks the parquet layout. Files written with another
// version are treated as absent instead of being misread.
const blobSchemaVersion = 1

// blobRecord is one bar row inside a tier-3 parquet blob.
type blobRecord struct {
	SchemaVersion int32   `parquet:"name=schema_version, type=INT32"`
	Symbol        string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Interval      string  `parquet:"name=interval, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64"`
	Open          float64 `parquet:"name=open, type=DOUBLE"`
	High          float64 `parquet:"name=high, type=DOUBLE"`
	Low           float64 `parquet:"name=low, type=DOUBLE"`
	Close         float64 `parquet:"name=close, type=DOUBLE"`
	Volume        int64   `parquet:"name=volume, type=INT64"`
}

// memoryFile implements source.ParquetFile over an in-memory buffer, the
// same trick the parquet writers use to avoid temp files.
type memoryFile struct {
	buffer *bytes.Buffer
	r      *bytes.Reader
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func newMemoryFileFrom(data []byte) *memoryFile {
	return &memoryFile{buffer: bytes.NewBuffer(data), r: bytes.NewReader(data)}
}

func (mf *memoryFile) Create(name string) (source.ParquetFile, error) {
	return mf, nil
}

func (mf *memoryFile) Open(name string) (source.ParquetFile, error) {
	if mf.r != nil {
		if _, err := mf.r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return mf, nil
}

func (mf *memoryFile) Seek(offset int64, whence int) (int64, error) {
	if mf.r != nil {
		return mf.r.Seek(offset, whence)
	}
	return int64(mf.buffer.Len()), nil
}

func (mf *memoryFile) Read(b []byte) (int, error) {
	if mf.r != nil {
		return mf.r.Read(b)
	}
	return mf.buffer.Read(b)
}

func (mf *memoryFile) Write(b []byte) (int, error) {
	return mf.buffer.Write(b)
}

func (mf *memoryFile) Close() error {
	return nil
}

func (mf *memoryFile) Bytes() []byte {
	return mf.buffer.Bytes()
}

// BlobStore is the durable tier-3 cache: one parquet file per cache key in
// a local directory, expired by age, optionally mirrored to S3.
type BlobStore struct {
	dir       string
	expiry    time.Duration
	log       *logger.Log
	s3Client  *s3.Client
	s3Bucket  string
	s3Prefix  string
	s3Enabled bool
}

// NewBlobStore creates the blob directory and, when the S3 mirror is
// enabled, the S3 client used for write-through uploads.
func NewBlobStore(dir string, expiryDays int, s3cfg config.S3Config) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	b := &BlobStore{
		dir:    dir,
		expiry: time.Duration(expiryDays) * 24 * time.Hour,
		log:    logger.GetLogger(),
	}

	if s3cfg.Enabled {
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s3cfg.Region)}
		if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS configuration: %w", err)
		}
		b.s3Client = s3.NewFromConfig(awsCfg)
		b.s3Bucket = s3cfg.Bucket
		b.s3Prefix = s3cfg.Prefix
		b.s3Enabled = true
		b.log.WithComponent("blob_cache").WithFields(logger.Fields{
			"bucket": s3cfg.Bucket,
			"prefix": s3cfg.Prefix,
		}).Info("S3 blob mirror enabled")
	}

	return b, nil
}

func (b *BlobStore) path(key string) string {
	return filepath.Join(b.dir, key+".parquet")
}

// Save serializes the series to a parquet blob for the cache key and
// mirrors it to S3 when configured.
func (b *BlobStore) Save(ctx context.Context, key string, series *models.Series) error {
	if series.Empty() {
		return nil
	}

	mf := newMemoryFile()
	pw, err := writer.NewParquetWriter(mf, new(blobRecord), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, bar := range series.Bars {
		rec := blobRecord{
			SchemaVersion: blobSchemaVersion,
			Symbol:        series.Symbol,
			Interval:      series.Interval,
			Timestamp:     bar.Timestamp.UTC().Unix(),
			Open:          bar.Open,
			High:          bar.High,
			Low:           bar.Low,
			Close:         bar.Close,
			Volume:        bar.Volume,
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet blob: %w", err)
	}

	data := mf.Bytes()
	tmp := b.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write blob file: %w", err)
	}
	if err := os.Rename(tmp, b.path(key)); err != nil {
		return fmt.Errorf("rename blob file: %w", err)
	}
	logger.IncrementBlobWrite()

	if b.s3Enabled {
		b.mirror(ctx, key, data)
	}
	return nil
}

// mirror uploads the blob to S3. Upload failures are logged only; the
// local file is the source of truth for reads.
func (b *BlobStore) mirror(ctx context.Context, key string, data []byte) {
	objectKey := key + ".parquet"
	if b.s3Prefix != "" {
		objectKey = b.s3Prefix + "/" + objectKey
	}

	_, err := b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.s3Bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.log.WithComponent("blob_cache").WithError(err).WithFields(logger.Fields{
			"key": objectKey,
		}).Warn("failed to mirror blob to S3")
		return
	}
	logger.IncrementS3Mirror()
	b.log.WithComponent("blob_cache").WithFields(logger.Fields{
		"key":  objectKey,
		"size": len(data),
	}).Debug("mirrored blob to S3")
}

// Load reads the blob for a cache key. It returns (nil, false) when the
// file is absent, older than the expiry, or carries a different schema
// version; stale and drifted files are removed.
func (b *BlobStore) Load(key string) (*models.Series, bool) {
	log := b.log.WithComponent("blob_cache").WithFields(logger.Fields{"key": key})

	path := b.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	if b.expiry > 0 && time.Since(info.ModTime()) > b.expiry {
		log.Debug("blob expired, removing")
		if err := os.Remove(path); err != nil {
			log.WithError(err).Warn("failed to remove expired blob")
		}
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Warn("failed to read blob file")
		return nil, false
	}

	records, err := readBlob(data)
	if err != nil {
		log.WithError(err).Warn("failed to parse blob, removing")
		_ = os.Remove(path)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	if records[0].SchemaVersion != blobSchemaVersion {
		log.WithFields(logger.Fields{
			"found":    records[0].SchemaVersion,
			"expected": blobSchemaVersion,
		}).Warn("blob schema version mismatch, removing")
		_ = os.Remove(path)
		return nil, false
	}

	series := &models.Series{Symbol: records[0].Symbol, Interval: records[0].Interval}
	for _, rec := range records {
		series.Bars = append(series.Bars, models.Bar{
			Timestamp: time.Unix(rec.Timestamp, 0).UTC(),
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		})
	}
	series.Standardize()
	return series, true
}

func readBlob(data []byte) ([]blobRecord, error) {
	mf := newMemoryFileFrom(data)
	pr, err := reader.NewParquetReader(mf, new(blobRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	records := make([]blobRecord, num)
	if err := pr.Read(&records); err != nil {
		return nil, fmt.Errorf("read parquet records: %w", err)
	}
	return records, nil
}
