package evidence

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/domain"
)

func TestValidate_UploadRejectsBadStorageURI(t *testing.T) {
	orgID := uuid.New()
	raw, err := json.Marshal(UploadMetadata{
		StorageURI:       "evidence/wrong-org/2026/07/" + uuid.New().String() + ".pdf",
		ChecksumSHA256:   "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789012",
		FileSize:         1024,
		MimeType:         "application/pdf",
		OriginalFilename: "report.pdf",
	})
	require.NoError(t, err)

	_, err = Validate(domain.EvidenceUpload, orgID, raw)
	require.Error(t, err)
}

func TestValidate_UploadAcceptsWellFormedMetadata(t *testing.T) {
	orgID := uuid.New()
	docID := uuid.New()
	raw, err := json.Marshal(UploadMetadata{
		StorageURI:       "evidence/" + orgID.String() + "/2026/07/" + docID.String() + ".pdf",
		ChecksumSHA256:   "A1B2C3D4E5F60718293A4B5C6D7E8F9012345678901234567890123456789012",
		FileSize:         2048,
		MimeType:         "application/pdf",
		OriginalFilename: "report.pdf",
	})
	require.NoError(t, err)

	normalized, err := Validate(domain.EvidenceUpload, orgID, raw)
	require.NoError(t, err)

	var m UploadMetadata
	require.NoError(t, json.Unmarshal(normalized, &m))
	assert.Equal(t, "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789012", m.ChecksumSHA256)
}

func TestValidate_UploadRejectsUnlistedMIMEType(t *testing.T) {
	orgID := uuid.New()
	raw, err := json.Marshal(UploadMetadata{
		StorageURI:       "evidence/" + orgID.String() + "/2026/07/" + uuid.New().String() + ".exe",
		ChecksumSHA256:   "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789012",
		FileSize:         1024,
		MimeType:         "application/x-msdownload",
		OriginalFilename: "tool.exe",
	})
	require.NoError(t, err)

	_, err = Validate(domain.EvidenceUpload, orgID, raw)
	require.Error(t, err)
}

func TestValidate_GitLowercasesCommitHash(t *testing.T) {
	raw, err := json.Marshal(GitMetadata{
		RepoURL:    "https://example.com/repo.git",
		CommitHash: "ABCDEF0123456789ABCDEF0123456789ABCDEF01",
	})
	require.NoError(t, err)

	normalized, err := Validate(domain.EvidenceGit, uuid.New(), raw)
	require.NoError(t, err)

	var m GitMetadata
	require.NoError(t, json.Unmarshal(normalized, &m))
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", m.CommitHash)
}

func TestValidate_NoteRequiresContent(t *testing.T) {
	raw, err := json.Marshal(NoteMetadata{Content: ""})
	require.NoError(t, err)

	_, err = Validate(domain.EvidenceNote, uuid.New(), raw)
	require.Error(t, err)
}

func TestValidate_URLRejectsRelativeURL(t *testing.T) {
	raw, err := json.Marshal(URLMetadata{URL: "/not/absolute"})
	require.NoError(t, err)

	_, err = Validate(domain.EvidenceURL, uuid.New(), raw)
	require.Error(t, err)
}
