package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
)

// statusUpdateRetries は楽観ロックの再試行上限。同一 ID への並行更新が
// この回数を超えて衝突し続けることは実運用上想定しない。
const statusUpdateRetries = 5

// ApplicationRepository は出願集約を MongoDB で扱う耐久ストア実装。
type ApplicationRepository struct {
	client       *mongo.Client
	applications *mongo.Collection
}

// NewApplicationRepository は出願コレクションを束縛したリポジトリを構築する。
func NewApplicationRepository(client *mongo.Client, database, collection string) *ApplicationRepository {
	return &ApplicationRepository{
		client:       client,
		applications: client.Database(database).Collection(collection),
	}
}

// Name identifies the durable store variant in logs and health output.
func (r *ApplicationRepository) Name() string { return "mongo" }

// Connect はプライマリへの疎通を確認する。接続リトライループから呼ばれる。
func (r *ApplicationRepository) Connect(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (r *ApplicationRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Create は正規化済みの出願を 1 ドキュメントとして挿入する。
func (r *ApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	doc := mapApplicationToDocument(app)
	if _, err := r.applications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: insert: %v", domain.ErrPersistence, err)
	}
	return nil
}

// FindByID は ID から単一の出願を取得する。
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*domain.Application, error) {
	var doc ApplicationDocument
	err := r.applications.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: findOne: %v", domain.ErrPersistence, err)
	}
	app := mapDocumentToApplication(doc)
	return &app, nil
}

// SearchByNationalID は受験者の国民 ID を部分一致で検索し、提出日時の降順で返す。
func (r *ApplicationRepository) SearchByNationalID(ctx context.Context, fragment string) ([]domain.Application, error) {
	if fragment == "" {
		return []domain.Application{}, nil
	}

	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(fragment)}
	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.applications.Find(ctx, bson.M{"nationalId": pattern}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	return decodeApplications(ctx, cursor)
}

// List は提出日時の降順で 1 ページ分と総件数を返す。
func (r *ApplicationRepository) List(ctx context.Context, paging application.Paging) ([]domain.Application, int64, error) {
	paging = paging.Normalize()

	total, err := r.applications.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count: %v", domain.ErrPersistence, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(paging.Offset())).
		SetLimit(int64(paging.Limit))

	cursor, err := r.applications.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: find: %v", domain.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	items, err := decodeApplications(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateStatus はステータス更新と監査ログ追記を単一の FindOneAndUpdate で原子的に行う。
// フィルタに現在のステータスを含める楽観ロックで、並行更新による追記の喪失を防ぐ。
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, change domain.StatusChange, policy domain.TransitionPolicy) (*domain.Application, error) {
	for attempt := 0; attempt < statusUpdateRetries; attempt++ {
		var current ApplicationDocument
		err := r.applications.FindOne(ctx, bson.M{"_id": id}).Decode(&current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: findOne: %v", domain.ErrPersistence, err)
		}

		from := domain.ApplicationStatus(current.Status)
		if err := policy.Allowed(from, change.NewStatus); err != nil {
			return nil, err
		}

		entry := ActivityEntryDocument{
			Timestamp:  change.Timestamp,
			Actor:      change.Actor,
			FromStatus: current.Status,
			ToStatus:   string(change.NewStatus),
			Note:       change.Note,
		}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated ApplicationDocument
		err = r.applications.FindOneAndUpdate(ctx,
			bson.M{"_id": id, "applicationStatus": current.Status},
			bson.M{
				"$set":  bson.M{"applicationStatus": string(change.NewStatus), "updatedAt": change.Timestamp},
				"$push": bson.M{"activityLog": entry},
			},
			opts,
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			// 読み取りと更新の間に別の更新が割り込んだ。最新状態で再試行する。
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: findOneAndUpdate: %v", domain.ErrPersistence, err)
		}

		app := mapDocumentToApplication(updated)
		return &app, nil
	}
	return nil, fmt.Errorf("%w: ステータス更新の競合が解消されませんでした id=%s", domain.ErrPersistence, id)
}

// ActivityLog は監査ログを古い順で返す。
func (r *ApplicationRepository) ActivityLog(ctx context.Context, id string) ([]domain.ActivityEntry, error) {
	app, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return app.ActivityLog, nil
}

func decodeApplications(ctx context.Context, cursor *mongo.Cursor) ([]domain.Application, error) {
	items := make([]domain.Application, 0)
	for cursor.Next(ctx) {
		var doc ApplicationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", domain.ErrPersistence, err)
		}
		items = append(items, mapDocumentToApplication(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %v", domain.ErrPersistence, err)
	}
	return items, nil
}

// mapApplicationToDocument はドメイン集約を Mongo スキーマへ変換する。
func mapApplicationToDocument(app *domain.Application) ApplicationDocument {
	doc := ApplicationDocument{
		ID:             app.ID,
		StudentName:    app.StudentName,
		Email:          app.Email,
		PhoneNumber:    app.PhoneNumber,
		AppliedProgram: app.AppliedProgram,
		GPA:            app.GPA,
		Age:            app.Age,
		NationalID:     app.NationalID,
		TestScore:      app.TestScore,
		Certificates:   make([]CertificateDocument, 0, len(app.Certificates)),
		SubmittedAt:    app.SubmittedAt,
		Status:         string(app.Status),
		ActivityLog:    make([]ActivityEntryDocument, 0, len(app.ActivityLog)),
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
	}
	if app.IDPhoto != nil {
		doc.IDPhoto = &FileRefDocument{URL: app.IDPhoto.URL, StoredName: app.IDPhoto.StoredName}
	}
	if app.SelfiePhoto != nil {
		doc.SelfiePhoto = &FileRefDocument{URL: app.SelfiePhoto.URL, StoredName: app.SelfiePhoto.StoredName}
	}
	for _, cert := range app.Certificates {
		doc.Certificates = append(doc.Certificates, CertificateDocument{
			URL:          cert.URL,
			OriginalName: cert.OriginalName,
			StoredName:   cert.StoredName,
		})
	}
	for _, entry := range app.ActivityLog {
		doc.ActivityLog = append(doc.ActivityLog, ActivityEntryDocument{
			Timestamp:  entry.Timestamp,
			Actor:      entry.Actor,
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			Note:       entry.Note,
		})
	}
	return doc
}

// mapDocumentToApplication は Mongo スキーマをドメイン集約へ復元する。
func mapDocumentToApplication(doc ApplicationDocument) domain.Application {
	app := domain.Application{
		ID:             doc.ID,
		StudentName:    doc.StudentName,
		Email:          doc.Email,
		PhoneNumber:    doc.PhoneNumber,
		AppliedProgram: doc.AppliedProgram,
		GPA:            doc.GPA,
		Age:            doc.Age,
		NationalID:     doc.NationalID,
		TestScore:      doc.TestScore,
		Certificates:   make([]domain.CertificateRef, 0, len(doc.Certificates)),
		SubmittedAt:    normalizeTime(doc.SubmittedAt),
		Status:         domain.ApplicationStatus(doc.Status),
		ActivityLog:    make([]domain.ActivityEntry, 0, len(doc.ActivityLog)),
		CreatedAt:      normalizeTime(doc.CreatedAt),
		UpdatedAt:      normalizeTime(doc.UpdatedAt),
	}
	if doc.IDPhoto != nil {
		app.IDPhoto = &domain.FileRef{URL: doc.IDPhoto.URL, StoredName: doc.IDPhoto.StoredName}
	}
	if doc.SelfiePhoto != nil {
		app.SelfiePhoto = &domain.FileRef{URL: doc.SelfiePhoto.URL, StoredName: doc.SelfiePhoto.StoredName}
	}
	for _, cert := range doc.Certificates {
		app.Certificates = append(app.Certificates, domain.CertificateRef{
			URL:          cert.URL,
			OriginalName: cert.OriginalName,
			StoredName:   cert.StoredName,
		})
	}
	for _, entry := range doc.ActivityLog {
		app.ActivityLog = append(app.ActivityLog, domain.ActivityEntry{
			Timestamp:  normalizeTime(entry.Timestamp),
			Actor:      entry.Actor,
			FromStatus: domain.ApplicationStatus(entry.FromStatus),
			ToStatus:   domain.ApplicationStatus(entry.ToStatus),
			Note:       entry.Note,
		})
	}
	return app
}

// normalizeTime は時刻を UTC に揃える。Mongo はミリ秒精度の UTC で返す。
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
