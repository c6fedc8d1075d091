package dto

type UploadTargetRequest struct {
	FileName    string `json:"fileName" binding:"required,max=255"`
	ContentType string `json:"contentType"`
}

type UploadTargetResponse struct {
	UploadURL string `json:"uploadUrl"`
	SourceKey string `json:"sourceKey"`
	ExpiresAt string `json:"expiresAt"`
}

type SubmitJobRequest struct {
	SourceKey string `json:"sourceKey" binding:"required"`
}

type SubmitJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ResultURL    string `json:"resultUrl,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobDTO struct {
	JobID        string `json:"jobId"`
	SourceKey    string `json:"sourceKey"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Attempts     int    `json:"attempts"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

type ListAttributesResponse struct {
	Attributes []AttributeDTO `json:"attributes"`
}

type AttributeDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	DataType  string   `json:"dataType"`
	Required  bool     `json:"required"`
	Options   []string `json:"options,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
