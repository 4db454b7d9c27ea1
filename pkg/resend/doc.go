// Package resend delivers mailing messages through the Resend HTTP API
// instead of SMTP.
//
//	mail, err := mailing.New(settings, mailing.WithTransport(resend.New(resend.Config{
//		APIKey: os.Getenv("RESEND_API_KEY"),
//	})))
//
// The built MIME tree is converted field by field: headers become the
// request addresses and subject, body parts become text and html, and
// attachment parts are sent with their filename and content type.
package resend
