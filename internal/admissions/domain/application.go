package domain

import "time"

// Application represents one admission submission aggregate.
type Application struct {
	ID             string
	StudentName    string
	Email          string
	PhoneNumber    string
	AppliedProgram string
	GPA            string
	Age            string
	NationalID     string
	TestScore      *float64
	IDPhoto        *FileRef
	SelfiePhoto    *FileRef
	Certificates   []CertificateRef
	SubmittedAt    time.Time
	Status         ApplicationStatus
	ActivityLog    []ActivityEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FileRef points at a single uploaded artifact.
type FileRef struct {
	URL        string
	StoredName string
}

// CertificateRef keeps the original filename alongside the stored one.
type CertificateRef struct {
	URL          string
	OriginalName string
	StoredName   string
}

// ActivityEntry is one immutable audit record of a status change.
type ActivityEntry struct {
	Timestamp  time.Time
	Actor      string
	FromStatus ApplicationStatus
	ToStatus   ApplicationStatus
	Note       string
}

// StatusChange captures a requested status transition before it is applied.
type StatusChange struct {
	NewStatus ApplicationStatus
	Actor     string
	Note      string
	Timestamp time.Time
}
