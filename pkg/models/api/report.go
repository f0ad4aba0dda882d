package api

import "time"

// ReportRequest is the body of POST /reports. From and To accept a date
// (2006-01-02, To inclusive) or an RFC 3339 timestamp (To exclusive).
type ReportRequest struct {
	Type     string              `json:"type"`
	From     string              `json:"from"`
	To       string              `json:"to"`
	Format   string              `json:"format,omitempty"`
	Timezone string              `json:"timezone,omitempty"`
	Filters  map[string][]string `json:"filters,omitempty"`
}

type SectionMetadata struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

type TablePlacement struct {
	Table string `json:"table"`
	Page  int    `json:"page"`
	Rows  int    `json:"rows"`
}

// ArtifactMetadata is sent in the X-Report-Metadata header.
type ArtifactMetadata struct {
	RequestID   string            `json:"request_id"`
	ReportType  string            `json:"report_type"`
	Format      string            `json:"format"`
	GeneratedAt time.Time         `json:"generated_at"`
	Partial     bool              `json:"partial"`
	Sections    []SectionMetadata `json:"sections"`
	Pages       int               `json:"pages,omitempty"`
	Tables      []TablePlacement  `json:"tables,omitempty"`
}

type ReportFilter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Multi    bool   `json:"multi"`
}

type ReportChart struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Title string `json:"title"`
}

type ReportType struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Filters     []ReportFilter `json:"filters"`
	Charts      []ReportChart  `json:"charts"`
	Sections    []string       `json:"sections"`
}

type DownloadLinks struct {
	HTML string `json:"html"`
	PDF  string `json:"pdf"`
}

type ReportPreview struct {
	ReportType   string        `json:"report_type"`
	PreviewImage string        `json:"preview_image,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Figure       any           `json:"figure"`
	Download     DownloadLinks `json:"download"`
}

type ErrorDetail struct {
	Stage   string `json:"stage,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
