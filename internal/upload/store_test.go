package upload

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

func buildForm(t *testing.T, parts []filePart) *multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		header.Set("Content-Type", p.contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form
}

func newTestStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()

	cfg := Config{
		Dir:     t.TempDir(),
		BaseURL: "/uploads",
		Now:     func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := NewStore(cfg)
	require.NoError(t, err)
	return store
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestSaveSubmissionStoresAllFiles(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, []filePart{
		{FieldIDPhoto, "id.jpg", "image/jpeg", []byte("jpeg-bytes")},
		{FieldSelfiePhoto, "selfie.png", "image/png", []byte("png-bytes")},
		{FieldCertificates, "英検2級.pdf", "application/pdf", []byte("pdf-1")},
		{FieldCertificates, "transcript.pdf", "application/pdf", []byte("pdf-2")},
	})

	files, err := store.SaveSubmission(form)
	require.NoError(t, err)

	require.NotNil(t, files.IDPhoto)
	require.NotNil(t, files.SelfiePhoto)
	require.Len(t, files.Certificates, 2)

	assert.Equal(t, "id.jpg", files.IDPhoto.OriginalName)
	assert.True(t, strings.HasPrefix(files.IDPhoto.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(files.IDPhoto.StoredName, "_id.jpg"))
	assert.EqualValues(t, len("jpeg-bytes"), files.IDPhoto.Size)

	// 非ASCIIの元ファイル名は保存名では置換される
	assert.Equal(t, "英検2級.pdf", files.Certificates[0].OriginalName)
	assert.NotContains(t, files.Certificates[0].StoredName, "英")

	entries := dirEntries(t, store.Dir())
	assert.Len(t, entries, 4)

	for _, stored := range []StoredFile{*files.IDPhoto, *files.SelfiePhoto, files.Certificates[0], files.Certificates[1]} {
		content, err := os.ReadFile(stored.Path)
		require.NoError(t, err)
		assert.NotEmpty(t, content)
	}
}

func TestSaveSubmissionRejectsUnsupportedType(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, []filePart{
		{FieldIDPhoto, "id.txt", "text/plain", []byte("not an image")},
	})

	_, err := store.SaveSubmission(form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFileType))
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestSaveSubmissionRejectsOversizedFile(t *testing.T) {
	store := newTestStore(t, func(cfg *Config) { cfg.MaxFileSize = 8 })

	form := buildForm(t, []filePart{
		{FieldIDPhoto, "id.jpg", "image/jpeg", []byte("123456789")},
	})

	_, err := store.SaveSubmission(form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFileTooLarge))
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestSaveSubmissionRejectsTooManyCertificates(t *testing.T) {
	store := newTestStore(t, func(cfg *Config) { cfg.MaxCertificates = 2 })

	form := buildForm(t, []filePart{
		{FieldCertificates, "c1.pdf", "application/pdf", []byte("1")},
		{FieldCertificates, "c2.pdf", "application/pdf", []byte("2")},
		{FieldCertificates, "c3.pdf", "application/pdf", []byte("3")},
	})

	_, err := store.SaveSubmission(form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestSaveSubmissionRollsBackOnPartialFailure(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, []filePart{
		{FieldIDPhoto, "id.jpg", "image/jpeg", []byte("valid")},
		{FieldSelfiePhoto, "selfie.png", "image/png", []byte("valid")},
		{FieldCertificates, "malware.exe", "application/octet-stream", []byte("nope")},
	})

	_, err := store.SaveSubmission(form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFileType))

	// 先に保存された写真も巻き戻される
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestSaveSubmissionAllowsFilesToBeOptional(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, nil)
	files, err := store.SaveSubmission(form)
	require.NoError(t, err)
	assert.Nil(t, files.IDPhoto)
	assert.Nil(t, files.SelfiePhoto)
	assert.Empty(t, files.Certificates)
}

func TestRemoveDeletesStoredFiles(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, []filePart{
		{FieldIDPhoto, "id.jpg", "image/jpeg", []byte("bytes")},
		{FieldCertificates, "c1.pdf", "application/pdf", []byte("bytes")},
	})

	files, err := store.SaveSubmission(form)
	require.NoError(t, err)
	require.Len(t, dirEntries(t, store.Dir()), 2)

	store.Remove(files)
	assert.Empty(t, dirEntries(t, store.Dir()))
}

func TestStoredNamesAreUniqueWithinSameMillisecond(t *testing.T) {
	store := newTestStore(t, nil)

	form := buildForm(t, []filePart{
		{FieldCertificates, "same.pdf", "application/pdf", []byte("1")},
		{FieldCertificates, "same.pdf", "application/pdf", []byte("2")},
	})

	files, err := store.SaveSubmission(form)
	require.NoError(t, err)
	require.Len(t, files.Certificates, 2)
	assert.NotEqual(t, files.Certificates[0].StoredName, files.Certificates[1].StoredName)
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"simple.pdf", "simple.pdf"},
		{"my file (1).pdf", "my_file__1_.pdf"},
		{"../../etc/passwd", "passwd"},
		{"合格証明書.pdf", "_____.pdf"},
		{"", "file"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}
