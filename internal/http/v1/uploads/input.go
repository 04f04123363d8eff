package uploads

// UploadInput for POST /uploads
type UploadInput struct {
	Body struct {
		Type     string `json:"type"     enum:"avatar"                    doc:"Object kind"                               example:"avatar"`
		Filename string `json:"filename" minLength:"1" maxLength:"128"    doc:"Object key; must be the caller's user id"  example:"user-123"`
		Content  string `json:"content"  minLength:"1"                    doc:"Base64 data URL"                           example:"data:image/jpeg;base64,/9j/4AAQ"`
	}
}
