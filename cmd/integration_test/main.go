// Command integration_test drives a running API end to end: it generates a
// function and waits for the archived row to reach the Postgres or SQLite
// archive named by ARCHIVE_BACKEND.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/archive"
	"github.com/funcgen/api/internal/config"
	"github.com/funcgen/api/internal/database"
	"github.com/funcgen/api/internal/models"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	archived, closeArchive, err := archiveLookup(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer closeArchive()

	baseURL := os.Getenv("API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	// unique name so the archived row can be found again
	functionName := "add_" + uuid.NewString()[:8]
	payload, _ := json.Marshal(models.GenerationRequest{
		Language:       "javascript",
		FunctionName:   functionName,
		Parameters:     "x: number, y: number",
		ReturnType:     "number",
		Description:    "Adds two numbers",
		TestsRequested: true,
	})

	log.Printf("Calling generator endpoint for %s...", functionName)
	client := &http.Client{Timeout: cfg.OpenAITimeout + 5*time.Second}

	var resp *http.Response
	for i := 0; i < 10; i++ {
		req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/generator", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, err = client.Do(req)
		if err == nil {
			break
		}
		log.Printf("Waiting for server... %v", err)
		time.Sleep(time.Second)
	}
	if err != nil {
		log.Fatalf("Request failed after retries: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Expected 200 OK, got %d. Body: %s", resp.StatusCode, body)
	}

	var result models.GenerationResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Failed to decode response: %v", err)
	}
	status := "none"
	if result.SyntaxStatus != nil {
		status = string(*result.SyntaxStatus)
	}
	fmt.Printf("syntax_check: %s\ncode:\n%s\n", status, result.Implementation)

	log.Println("Waiting for archived row...")
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		found, err := archived(ctx, functionName)
		if err != nil {
			log.Fatalf("Failed to query generations: %v", err)
		}
		if found {
			log.Println("SUCCESS: generated and archived")
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("No archived generation found!")
}

// archiveLookup reports whether a generation for a function name has been
// archived by the configured backend
func archiveLookup(ctx context.Context, cfg *config.Config) (func(context.Context, string) (bool, error), func(), error) {
	switch cfg.ArchiveBackend {
	case config.ArchivePostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, name string) (bool, error) {
			var count int
			err := db.Pool().QueryRow(ctx, "SELECT COUNT(*) FROM generations WHERE function_name = $1", name).Scan(&count)
			return count > 0, err
		}, db.Close, nil

	case config.ArchiveSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath, zap.NewNop())
		if err != nil {
			return nil, nil, err
		}
		store := archive.NewSQLiteStore(db)
		return func(ctx context.Context, name string) (bool, error) {
			return recentContains(ctx, store, name)
		}, func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("archive backend %q cannot be queried", cfg.ArchiveBackend)
}

// recentItems is satisfied by archives that can list their newest records
type recentItems interface {
	Recent(ctx context.Context, limit int) ([]models.ArchivedRecord, error)
}

func recentContains(ctx context.Context, store recentItems, functionName string) (bool, error) {
	records, err := store.Recent(ctx, 50)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.FunctionName == functionName {
			return true, nil
		}
	}
	return false, nil
}
