package dto

type UploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required,filename"`
	ContentType string `json:"contentType" binding:"required"`
}

type UploadURLResponse struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
	Key    string            `json:"key"`
}

type DownloadURLResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}
