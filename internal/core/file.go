package core

import (
	"time"
)

// DocumentType tags what kind of business document a file carries.
type DocumentType string

const (
	DocInvoice       DocumentType = "invoice"
	DocStatement     DocumentType = "statement"
	DocPaymentRemit  DocumentType = "payment_remittance"
	DocAccountingEDI DocumentType = "accounting_edi"
	DocOther         DocumentType = "other"
)

// FileFormat tags the on-disk format of a discovered file.
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatJSON FileFormat = "json"
	FormatCSV  FileFormat = "csv"
	FormatXML  FileFormat = "xml"
	FormatHTML FileFormat = "html"
	FormatXLSX FileFormat = "xlsx"
)

// DiscoveredFile is one file observed during a Run, not necessarily
// downloaded. Content and extracted-text hashes are the dedup fences.
type DiscoveredFile struct {
	ID                string       `db:"id"`
	RunID             string       `db:"run_id"`
	ConnectorID       string       `db:"connector_id"`
	ReferenceCode     string       `db:"reference_code"`
	OriginalFilename  string       `db:"original_filename"`
	OriginalURL       string       `db:"original_url"`
	FileFormat        FileFormat   `db:"file_format"`
	DocumentType      DocumentType `db:"document_type"`
	ContentHash       string       `db:"content_hash"`
	ExtractedTextHash *string      `db:"extracted_text_hash"`
	CollisionDedupe   string       `db:"collision_dedupe"`
	DocumentProps     PropMap      `db:"document_props"`
	Downloaded        TriState     `db:"downloaded"`
	DownloadedAt      *time.Time   `db:"downloaded_at"`
	ContentRef        *string      `db:"content_ref"`
	UploadID          *string      `db:"upload_id"`
	ContainerID       *string      `db:"container_id"`
	ProcessingFailed  bool         `db:"processing_failed"`
	Deleted           bool         `db:"deleted"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

// BlobKey is the blob-store path for the file's original content.
func (f *DiscoveredFile) BlobKey() string {
	ext := string(f.FileFormat)
	if ext == "" {
		ext = "bin"
	}
	return "discovered_files/original/" + f.ID + "." + ext
}

// FileAction says what happens to a DiscoveredFile after its Run finishes.
type FileAction string

const (
	ActionNone            FileAction = "none"
	ActionPiqUpload       FileAction = "piq_standard_upload"
	ActionPiqEDIUpload    FileAction = "piq_edi_upload"
	ActionPaymentsEDIUpld FileAction = "payments_edi_upload"
)

// FileDiscoveryAction binds a document type to a post-processing action,
// either as a connector default (JobID nil) or a per-job override.
type FileDiscoveryAction struct {
	ID           string       `db:"id"`
	ConnectorID  string       `db:"connector_id"`
	JobID        *string      `db:"job_id"`
	DocumentType DocumentType `db:"document_type"`
	Action       FileAction   `db:"action"`
	CreatedAt    time.Time    `db:"created_at"`
}
