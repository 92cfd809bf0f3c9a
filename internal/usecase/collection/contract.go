package collection

import "context"

// Store is the vector-store surface the collection service needs.
type Store interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	DeleteCollection(ctx context.Context, name string) error
}
