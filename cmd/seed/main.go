// seed は開発環境向けに出願データを耐久ストアへ投入するコマンド。
// DB_DRIVER に応じて MongoDB / PostgreSQL のどちらにも投入できる。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/domain"
	mongodoc "github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/mongo"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/postgres"
)

type seedOptions struct {
	count      int
	reviewed   int
	randomSeed int64
}

type durableStore interface {
	application.ApplicationRepository
	Connect(ctx context.Context) error
	Name() string
}

func main() {
	opts := parseFlags()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, cleanup, err := buildStore(ctx)
	if err != nil {
		log.Fatalf("ストアの初期化に失敗しました: %v", err)
	}
	defer cleanup()

	if err := store.Connect(ctx); err != nil {
		log.Fatalf("%s への接続に失敗しました: %v", store.Name(), err)
	}

	rng := rand.New(rand.NewSource(opts.randomSeed))

	apps := generateApplications(rng, opts.count)
	for i := range apps {
		if err := store.Create(ctx, &apps[i]); err != nil {
			log.Fatalf("出願データの挿入に失敗しました id=%s: %v", apps[i].ID, err)
		}
	}

	reviewed := 0
	for i := 0; i < len(apps) && reviewed < opts.reviewed; i++ {
		change := domain.StatusChange{
			NewStatus: reviewTargets[rng.Intn(len(reviewTargets))],
			Actor:     "seed-admin",
			Note:      "初期データ投入時のステータス設定",
			Timestamp: time.Now().UTC(),
		}
		if _, err := store.UpdateStatus(ctx, apps[i].ID, change, domain.AllowAnyTransition()); err != nil {
			log.Fatalf("ステータス更新に失敗しました id=%s: %v", apps[i].ID, err)
		}
		reviewed++
	}

	log.Printf("Seed 完了: store=%s applications=%d reviewed=%d", store.Name(), len(apps), reviewed)
}

func parseFlags() seedOptions {
	var opts seedOptions
	flag.IntVar(&opts.count, "count", 30, "生成する出願数")
	flag.IntVar(&opts.reviewed, "reviewed", 10, "審査済みステータスへ進める出願数")
	defaultSeed := time.Now().UnixNano()
	flag.Int64Var(&opts.randomSeed, "seed", defaultSeed, "乱数シード（再現用）")
	flag.Parse()

	if opts.count <= 0 {
		log.Fatal("count は 1 以上を指定してください")
	}
	if opts.reviewed < 0 {
		opts.reviewed = 0
	}
	if opts.reviewed > opts.count {
		opts.reviewed = opts.count
	}
	return opts
}

// buildStore は DB_DRIVER に応じた耐久ストアと後始末関数を返す。
func buildStore(ctx context.Context) (durableStore, func(), error) {
	driver := strings.ToLower(envOrDefault("DB_DRIVER", "mongo"))

	switch driver {
	case "postgres":
		dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
		if dsn == "" {
			return nil, nil, fmt.Errorf("POSTGRES_DSN が設定されていません")
		}
		repo, err := postgres.NewApplicationRepository(dsn)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = repo.Close(context.Background())
		}
		return repo, cleanup, nil
	case "mongo":
		mongoURI := envOrDefault("MONGO_URI", "mongodb://localhost:27017")
		dbName := envOrDefault("MONGO_DB", "admissions")
		collection := envOrDefault("APPLICATION_COLLECTION", "applications")

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Disconnect(context.Background())
		}
		return mongodoc.NewApplicationRepository(client, dbName, collection), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("DB_DRIVER は mongo か postgres を指定してください: %q", driver)
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func generateApplications(rng *rand.Rand, count int) []domain.Application {
	now := time.Now().UTC()
	apps := make([]domain.Application, 0, count)

	for i := 0; i < count; i++ {
		name := studentNames[rng.Intn(len(studentNames))]
		program := programs[rng.Intn(len(programs))]
		submitted := now.Add(-time.Duration(rng.Intn(90*24)) * time.Hour)
		gpa := fmt.Sprintf("%.2f", 2.0+rng.Float64()*2.0)
		age := fmt.Sprintf("%d", 15+rng.Intn(8))
		nationalID := fmt.Sprintf("AB%08d", rng.Intn(100000000))

		var testScore *float64
		if rng.Intn(3) != 0 {
			score := 40.0 + rng.Float64()*60.0
			testScore = &score
		}

		id := uuid.NewString()
		apps = append(apps, domain.Application{
			ID:             id,
			StudentName:    name,
			Email:          fmt.Sprintf("applicant%d@example.com", rng.Intn(9000)+1000),
			PhoneNumber:    fmt.Sprintf("080-%04d-%04d", rng.Intn(10000), rng.Intn(10000)),
			AppliedProgram: program,
			GPA:            gpa,
			Age:            age,
			NationalID:     nationalID,
			TestScore:      testScore,
			IDPhoto: &domain.FileRef{
				URL:        fmt.Sprintf("/uploads/seed_%s_id.jpg", id[:8]),
				StoredName: fmt.Sprintf("seed_%s_id.jpg", id[:8]),
			},
			SelfiePhoto: &domain.FileRef{
				URL:        fmt.Sprintf("/uploads/seed_%s_selfie.jpg", id[:8]),
				StoredName: fmt.Sprintf("seed_%s_selfie.jpg", id[:8]),
			},
			Certificates:   generateCertificates(rng, id),
			SubmittedAt:    submitted,
			Status:         domain.StatusPending,
			ActivityLog:    []domain.ActivityEntry{},
			CreatedAt:      submitted,
			UpdatedAt:      submitted,
		})
	}
	return apps
}

func generateCertificates(rng *rand.Rand, id string) []domain.CertificateRef {
	count := rng.Intn(4)
	certs := make([]domain.CertificateRef, 0, count)
	for i := 0; i < count; i++ {
		original := certificateNames[rng.Intn(len(certificateNames))]
		stored := fmt.Sprintf("seed_%s_cert%d.pdf", id[:8], i+1)
		certs = append(certs, domain.CertificateRef{
			URL:          "/uploads/" + stored,
			OriginalName: original,
			StoredName:   stored,
		})
	}
	return certs
}

var (
	studentNames = []string{
		"佐藤 陽菜", "鈴木 大翔", "高橋 結衣", "田中 蓮", "伊藤 葵", "渡辺 湊",
		"山本 芽依", "中村 樹", "小林 紬", "加藤 悠真", "吉田 凛", "山田 朝陽",
	}

	programs = []string{
		"普通科", "理数科", "国際教養科", "情報科学科", "芸術科",
	}

	certificateNames = []string{
		"英検2級合格証.pdf", "数学オリンピック参加証.pdf", "成績証明書.pdf",
		"皆勤賞状.pdf", "生徒会活動証明.pdf",
	}

	reviewTargets = []domain.ApplicationStatus{
		domain.StatusUnderReview, domain.StatusAccepted, domain.StatusWaitlisted,
	}
)
