package uploads

// UploadOutput for POST /uploads
type UploadOutput struct {
	Body struct {
		URL string `json:"url" doc:"Durable reference to the stored object" example:"https://storage.googleapis.com/bucket/avatar/user-123?generation=1"`
	}
}
