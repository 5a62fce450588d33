package adapter

import "context"

// DocumentStore is the text-extraction front end. The pipeline only
// needs the plain text of an already-uploaded script.
type DocumentStore interface {
	FetchText(ctx context.Context, documentID string) (string, error)
}
