package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"GuildFM/core/retention"
	"GuildFM/logger"
)

// ObjectStore Archiver 需要的 MinIO 操作，*minio.Client 满足该接口
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ArchiveInfo 一个归档文件
type ArchiveInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Archiver 把被清理的日志行以 JSON Lines 形式写入 MinIO，实现 retention.Archiver
type Archiver struct {
	store  ObjectStore
	bucket string
	now    func() time.Time
}

// NewArchiver 创建归档器
func NewArchiver(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket, now: time.Now}
}

// objectKey <table>/<yyyy>/<mm>/<dd>/<firstID>-<lastID>.jsonl
func (a *Archiver) objectKey(table string, rows []retention.Row) string {
	first, last := rows[0].RowID(), rows[len(rows)-1].RowID()
	return fmt.Sprintf("%s/%s/%d-%d.jsonl", table, a.now().UTC().Format("2006/01/02"), first, last)
}

// Archive 写入一批行
func (a *Archiver) Archive(ctx context.Context, table string, rows []retention.Row) error {
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode row %d: %w", r.RowID(), err)
		}
	}

	key := a.objectKey(table, rows)
	_, err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("上传归档失败 %s: %w", key, err)
	}

	logger.Debug("rows archived", logger.String("table", table), logger.String("key", key), logger.Int("rows", len(rows)))
	return nil
}

// List 列出一张表的归档文件，table 为空时列出全部
func (a *Archiver) List(ctx context.Context, table string) ([]ArchiveInfo, error) {
	prefix := ""
	if table != "" {
		prefix = table + "/"
	}
	var out []ArchiveInfo
	for obj := range a.store.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("列出归档失败: %w", obj.Err)
		}
		out = append(out, ArchiveInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}
