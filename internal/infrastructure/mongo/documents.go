package mongo

import "time"

// ApplicationDocument は MongoDB 上での出願スキーマを Go 構造体として表現したもの。
// `_id` にはサービス層で採番した文字列 ID をそのまま用いる。フォールバックからの
// 照合時にも ID が変わらないよう、ObjectID による再採番は行わない。
type ApplicationDocument struct {
	ID             string                  `bson:"_id"`
	StudentName    string                  `bson:"studentName"`
	Email          string                  `bson:"email"`
	PhoneNumber    string                  `bson:"phoneNumber"`
	AppliedProgram string                  `bson:"appliedProgram"`
	GPA            string                  `bson:"gpa"`
	Age            string                  `bson:"age"`
	NationalID     string                  `bson:"nationalId"`
	TestScore      *float64                `bson:"testScore,omitempty"`
	IDPhoto        *FileRefDocument        `bson:"idPhoto,omitempty"`
	SelfiePhoto    *FileRefDocument        `bson:"selfiePhoto,omitempty"`
	Certificates   []CertificateDocument   `bson:"certificates"`
	SubmittedAt    time.Time               `bson:"submittedAt"`
	Status         string                  `bson:"applicationStatus"`
	ActivityLog    []ActivityEntryDocument `bson:"activityLog"`
	CreatedAt      time.Time               `bson:"createdAt"`
	UpdatedAt      time.Time               `bson:"updatedAt"`
}

// FileRefDocument は単一アップロードファイルへの参照を保持する埋め込みドキュメント。
type FileRefDocument struct {
	URL        string `bson:"url"`
	StoredName string `bson:"storedName"`
}

// CertificateDocument は証明書 1 件分のメタデータを格納する埋め込みドキュメント。
type CertificateDocument struct {
	URL          string `bson:"url"`
	OriginalName string `bson:"originalName"`
	StoredName   string `bson:"storedName"`
}

// ActivityEntryDocument はステータス変更の監査ログ 1 行を表す。追記のみで書き換えない。
type ActivityEntryDocument struct {
	Timestamp  time.Time `bson:"timestamp"`
	Actor      string    `bson:"actor"`
	FromStatus string    `bson:"fromStatus"`
	ToStatus   string    `bson:"toStatus"`
	Note       string    `bson:"note,omitempty"`
}
