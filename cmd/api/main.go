package main

import (
	"log"

	"github.com/sakura-gakuin/admissions-services/api/internal/config"
	"github.com/sakura-gakuin/admissions-services/api/internal/server"
)

func main() {
	cfg := config.Load()

	app, err := server.New(cfg)
	if err != nil {
		cfg.ServerLog.Fatalf("サーバーの初期化に失敗しました: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("サーバー起動に失敗: %v", err)
	}
}
