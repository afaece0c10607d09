package dto

// ImportDocumentsRequest corpo de POST /api/inbound/import: XMLs recebidos fora da distribuição DF-e.
type ImportDocumentsRequest struct {
	BranchID  string              `json:"branch_id"`
	Documents []ImportDocumentDTO `json:"documents"`
}

// ImportDocumentDTO um XML de CT-e ou NF-e.
type ImportDocumentDTO struct {
	AccessKey string `json:"access_key,omitempty"`
	XML       string `json:"xml"`
}
