// Package upload は出願書類のマルチパート受け入れを担当する。
// 宣言された Content-Type の許可リスト検査・ファイルサイズ上限・保存名の正規化を行い、
// 検証に失敗した提出は書き込み済みファイルを含めて丸ごと巻き戻す。
package upload

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

const (
	// FieldIDPhoto は本人確認写真のフォームフィールド名。
	FieldIDPhoto = "idPhoto"
	// FieldSelfiePhoto は自撮り写真のフォームフィールド名。
	FieldSelfiePhoto = "selfiePhoto"
	// FieldCertificates は証明書類のフォームフィールド名。
	FieldCertificates = "certificates"
)

// StoredFile holds metadata of one accepted upload artifact.
type StoredFile struct {
	FieldName    string
	OriginalName string
	StoredName   string
	Path         string
	URL          string
	ContentType  string
	Size         int64
}

// SubmissionFiles groups the files of a single submission by logical field.
type SubmissionFiles struct {
	IDPhoto      *StoredFile
	SelfiePhoto  *StoredFile
	Certificates []StoredFile
}

// Store writes accepted uploads into a fixed directory and serves their metadata.
type Store struct {
	dir             string
	baseURL         string
	maxFileSize     int64
	maxCertificates int
	logger          *log.Logger
	now             func() time.Time
	seq             atomic.Uint64
}

// Config defines dependencies and limits for Store.
type Config struct {
	Dir             string
	BaseURL         string
	MaxFileSize     int64
	MaxCertificates int
	Logger          *log.Logger
	Now             func() time.Time
}

// NewStore はアップロード先ディレクトリを用意し、検証設定を束縛した Store を返す。
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("upload: Dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: ディレクトリの作成に失敗: %w", err)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "/uploads"
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 5 << 20
	}
	maxCerts := cfg.MaxCertificates
	if maxCerts <= 0 {
		maxCerts = 50
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		dir:             cfg.Dir,
		baseURL:         baseURL,
		maxFileSize:     maxSize,
		maxCertificates: maxCerts,
		logger:          cfg.Logger,
		now:             now,
	}, nil
}

// Dir returns the directory accepted files are written into.
func (s *Store) Dir() string { return s.dir }

// SaveSubmission は 1 回の提出に含まれる全ファイルを検証して保存する。
// いずれかのファイルが検証に失敗した場合、既に書き込んだファイルを削除して
// エラーを返す。部分的に受理された提出が API から観測されることはない。
func (s *Store) SaveSubmission(form *multipart.Form) (*SubmissionFiles, error) {
	if form == nil {
		return &SubmissionFiles{Certificates: []StoredFile{}}, nil
	}

	certHeaders := form.File[FieldCertificates]
	if len(certHeaders) > s.maxCertificates {
		return nil, fmt.Errorf("%w: 証明書は最大%d件までです", domain.ErrValidation, s.maxCertificates)
	}

	written := make([]string, 0, len(certHeaders)+2)
	rollback := func() {
		for _, path := range written {
			if err := os.Remove(path); err != nil && s.logger != nil {
				s.logger.Printf("アップロード巻き戻しに失敗 path=%s err=%v", path, err)
			}
		}
	}

	result := &SubmissionFiles{Certificates: []StoredFile{}}

	if header := firstFileHeader(form, FieldIDPhoto); header != nil {
		stored, err := s.saveOne(FieldIDPhoto, header)
		if err != nil {
			rollback()
			return nil, err
		}
		written = append(written, stored.Path)
		result.IDPhoto = stored
	}

	if header := firstFileHeader(form, FieldSelfiePhoto); header != nil {
		stored, err := s.saveOne(FieldSelfiePhoto, header)
		if err != nil {
			rollback()
			return nil, err
		}
		written = append(written, stored.Path)
		result.SelfiePhoto = stored
	}

	for _, header := range certHeaders {
		stored, err := s.saveOne(FieldCertificates, header)
		if err != nil {
			rollback()
			return nil, err
		}
		written = append(written, stored.Path)
		result.Certificates = append(result.Certificates, *stored)
	}

	return result, nil
}

// Remove は保存済みファイル群を削除する。提出が永続化前に失敗した場合の後始末に使う。
func (s *Store) Remove(files *SubmissionFiles) {
	if files == nil {
		return
	}
	paths := make([]string, 0, len(files.Certificates)+2)
	if files.IDPhoto != nil {
		paths = append(paths, files.IDPhoto.Path)
	}
	if files.SelfiePhoto != nil {
		paths = append(paths, files.SelfiePhoto.Path)
	}
	for _, cert := range files.Certificates {
		paths = append(paths, cert.Path)
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && s.logger != nil {
			s.logger.Printf("アップロード削除に失敗 path=%s err=%v", path, err)
		}
	}
}

// saveOne は単一ファイルの検証・保存を行う。
func (s *Store) saveOne(field string, header *multipart.FileHeader) (*StoredFile, error) {
	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if !allowedContentType(contentType) {
		return nil, fmt.Errorf("%w (field=%s, type=%s)", domain.ErrInvalidFileType, field, contentType)
	}
	if header.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s は %dMiB を超えています", domain.ErrFileTooLarge, header.Filename, s.maxFileSize>>20)
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードの読み取りに失敗: %w", err)
	}
	defer src.Close()

	storedName := s.storedName(header.Filename)
	path := filepath.Join(s.dir, storedName)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("アップロードの書き込みに失敗: %w", err)
	}

	// 宣言サイズを信用せず、実際のバイト数でも上限を守る。
	size, err := io.Copy(dst, io.LimitReader(src, s.maxFileSize+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("アップロードの書き込みに失敗: %w", err)
	}
	if size > s.maxFileSize {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s は %dMiB を超えています", domain.ErrFileTooLarge, header.Filename, s.maxFileSize>>20)
	}

	return &StoredFile{
		FieldName:    field,
		OriginalName: header.Filename,
		StoredName:   storedName,
		Path:         path,
		URL:          s.baseURL + "/" + storedName,
		ContentType:  contentType,
		Size:         size,
	}, nil
}

// storedName はタイムスタンプ + 連番 + 正規化した元ファイル名から保存名を組み立てる。
// パストラバーサルと同時刻の衝突を防ぐ。
func (s *Store) storedName(original string) string {
	ts := s.now().UnixMilli()
	seq := s.seq.Add(1)
	return fmt.Sprintf("%d_%d_%s", ts, seq, SanitizeFilename(original))
}

// SanitizeFilename は英数字と `.-_` 以外の文字を `_` に置き換える。
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "file"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}

// allowedContentType は image/* と application/pdf のみ許可する。
func allowedContentType(contentType string) bool {
	if strings.HasPrefix(contentType, "image/") && len(contentType) > len("image/") {
		return true
	}
	return contentType == "application/pdf"
}

// firstFileHeader は単一ファイル用フィールドの先頭ヘッダを返す。
func firstFileHeader(form *multipart.Form, field string) *multipart.FileHeader {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil
	}
	return headers[0]
}
