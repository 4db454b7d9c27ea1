// Package storage connects mail to S3-compatible object storage.
//
// Attachments can be sourced from a bucket:
//
//	store, err := storage.New(cfg)
//	src, err := store.Attach(ctx, "invoices/42.pdf", "")
//	msg, err := mailing.NewMessage(mailing.MessageParams{
//	    Attachments: []mailing.AttachmentSource{src},
//	    ...
//	})
//
// and every dispatched message can be archived as an .eml object:
//
//	unsubscribe := m.Subscribe(store.Archiver(logger))
//	defer unsubscribe()
package storage
