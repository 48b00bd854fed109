package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

type fileUploader interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
}

// SupabaseArchiver copies raw webhook payloads to a Supabase Storage bucket,
// next to the Supabase Postgres the donations live in.
type SupabaseArchiver struct {
	client fileUploader
	bucket string
	now    func() time.Time
}

// NewSupabaseArchiver talks to <projectURL>/storage/v1 with the service role key.
func NewSupabaseArchiver(projectURL, serviceKey, bucket string) *SupabaseArchiver {
	endpoint := strings.TrimRight(projectURL, "/") + "/storage/v1"
	client := storage_go.NewClient(endpoint, serviceKey, nil)
	log.Printf("[archive] raw webhook payloads go to supabase bucket %s", bucket)
	return &SupabaseArchiver{client: client, bucket: bucket, now: time.Now}
}

// Archive checks ctx only before uploading; the storage client takes no context.
func (a *SupabaseArchiver) Archive(ctx context.Context, provider, deliveryID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(provider, deliveryID, a.now())
	contentType := "application/json"
	_, err := a.client.UploadFile(a.bucket, key, bytes.NewReader(body), storage_go.FileOptions{
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", a.bucket, key, err)
	}
	return nil
}
