package repository_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reviewsage/pkg/domain/interfaces"
	"github.com/secmon-lab/reviewsage/pkg/repository/firestore"
	"github.com/secmon-lab/reviewsage/pkg/repository/memory"
	"github.com/secmon-lab/reviewsage/pkg/repository/sqlite"
)

type repoFactory func(t *testing.T) interfaces.Repository

func newMemoryRepository(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newSqliteRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	ctx := context.Background()
	repo, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "reviewsage.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close(ctx))
	})
	return repo
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test_%d", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close(ctx))
	})
	return repo
}

func runAll(t *testing.T, run func(t *testing.T, newRepo repoFactory)) {
	t.Run("memory", func(t *testing.T) { run(t, newMemoryRepository) })
	t.Run("sqlite", func(t *testing.T) { run(t, newSqliteRepository) })
	t.Run("firestore", func(t *testing.T) { run(t, newFirestoreRepository) })
}
