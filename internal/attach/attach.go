// Package attach defines the attachment collaborator boundary. The
// sync service hands uploads here and attaches the returned metadata;
// where and how blobs are stored is outside the core.
package attach

import (
	"murmur/internal/ident"
	"murmur/internal/model"
)

// Upload is one inbound attachment body.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Storer persists attachment blobs for a message and can remove them
// again when the message is fully deleted.
type Storer interface {
	Persist(msg ident.ID, uploads []Upload) ([]model.Attachment, error)
	Remove(msg ident.ID) error
}

// Discard keeps metadata but drops blob bodies. Used by tests and
// deployments without file storage configured.
type Discard struct{}

func (Discard) Persist(msg ident.ID, uploads []Upload) ([]model.Attachment, error) {
	out := make([]model.Attachment, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, model.Attachment{
			ID:       ident.New(),
			Name:     u.Name,
			MimeType: u.MimeType,
			Size:     int64(len(u.Data)),
		})
	}
	return out, nil
}

func (Discard) Remove(ident.ID) error { return nil }
