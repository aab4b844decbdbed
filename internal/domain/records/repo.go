package records

import (
	"context"

	"github.com/ehr/medjson/internal/platform/filestore"
)

// RecordStore is the persistence the record flows need. *filestore.Store
// satisfies it.
type RecordStore interface {
	Save(ctx context.Context, id string, doc any) (string, error)
	SaveRaw(ctx context.Context, name string, data []byte) (string, error)
	ListAll(ctx context.Context) ([]filestore.StoredFile, error)
	ListSortedByCreatedAt(ctx context.Context) ([]filestore.StoredFile, error)
	Exists(ctx context.Context) (bool, error)
}
