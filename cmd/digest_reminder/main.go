package main

import (
	"context"
	"log"
	"os"

	"platefull.com/project-platefull/database"
	"platefull.com/project-platefull/handlers"
	"platefull.com/project-platefull/services"
)

func main() {
	firebasePath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if firebasePath == "" {
		log.Fatal("FIREBASE_CREDENTIALS_PATH not set")
	}

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatal("WeeklyDigest: DB connection failed:", err)
	}
	defer db.Close()

	ctx := context.Background()
	push, err := services.NewPush(ctx, firebasePath, db)
	if err != nil {
		log.Fatal("WeeklyDigest: Firebase init failed:", err)
	}

	log.Println("⏰ Running weekly digest job")
	if err := handlers.SendWeeklyDigest(ctx, db, push); err != nil {
		log.Fatal("WeeklyDigest: job failed:", err)
	}
	log.Println("✅ Weekly digest job finished")
}
