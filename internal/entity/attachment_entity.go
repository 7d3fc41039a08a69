package entity

// Attachment is an uploaded file held in memory until the next prompt consumes it.
type Attachment struct {
	MimeType         string
	Data             []byte
	OriginalFilename string
}
