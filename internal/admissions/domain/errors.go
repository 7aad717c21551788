package domain

import "errors"

// パイプライン全体で共有するエラー種別。ハンドラ層は errors.Is で HTTP ステータスへ写像する。
var (
	// ErrNotFound は指定された出願が存在しないことを示す。
	ErrNotFound = errors.New("出願が見つかりません")
	// ErrValidation は入力値の検証失敗を示す。
	ErrValidation = errors.New("入力値が不正です")
	// ErrInvalidFileType は許可されていないファイル形式が宣言されたことを示す。
	ErrInvalidFileType = errors.New("対応していないファイル形式です。画像またはPDFのみアップロードできます")
	// ErrFileTooLarge はファイルサイズの上限超過を示す。
	ErrFileTooLarge = errors.New("ファイルサイズが上限を超えています")
	// ErrForbidden は操作に必要なロールを持っていないことを示す。
	ErrForbidden = errors.New("この操作を行う権限がありません")
	// ErrPersistence はストアには到達できたが操作自体が失敗したことを示す。
	ErrPersistence = errors.New("データストアの操作に失敗しました")
)
