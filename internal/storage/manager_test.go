// manager_test.go - Tests for the export document store
package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store := createTestStore(t)
		if store.uploadDir == "" {
			t.Error("Expected uploadDir to be set")
		}
	})

	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves document from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := `[{"Logs": []}]`
		info, err := store.Save("export.json", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "export.json" {
			t.Errorf("Expected name 'export.json', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}
	})

	t.Run("saves empty file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("empty.json", strings.NewReader(""))
		if err != nil {
			t.Fatalf("Failed to save empty file: %v", err)
		}

		if info.Size != 0 {
			t.Errorf("Expected size 0, got %d", info.Size)
		}
	})

	t.Run("creates physical file", func(t *testing.T) {
		store := createTestStore(t)

		content := "Test content"
		info, err := store.Save("export.json", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}

		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})
}

func TestLocalStore_SaveBytes(t *testing.T) {
	store := createTestStore(t)

	data := []byte(`[{"Logs": [{"Name": "UpTime", "Values": []}]}]`)
	info, err := store.SaveBytes("export.json", data)
	if err != nil {
		t.Fatalf("Failed to save bytes: %v", err)
	}

	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}

	savedData, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if !bytes.Equal(savedData, data) {
		t.Error("Saved data doesn't match original")
	}
}

func TestLocalStore_Get(t *testing.T) {
	t.Run("gets existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("export.json", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		retrieved, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file: %v", err)
		}

		if retrieved.ID != info.ID {
			t.Errorf("Expected ID %s, got %s", info.ID, retrieved.ID)
		}
		if retrieved.Name != info.Name {
			t.Errorf("Expected name %s, got %s", info.Name, retrieved.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Get("non-existent-id"); err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	t.Run("lists files", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 5; i++ {
			if _, err := store.Save("export.json", strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(10 * time.Millisecond) // Ensure different timestamps
		}

		files, err := store.List(10)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if len(files) != 5 {
			t.Errorf("Expected 5 files, got %d", len(files))
		}
	})

	t.Run("limits results", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 10; i++ {
			if _, err := store.Save("export.json", strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("Expected 3 files, got %d", len(files))
		}
	})

	t.Run("sorts by upload time descending", func(t *testing.T) {
		store := createTestStore(t)

		ids := make([]string, 3)
		for i := 0; i < 3; i++ {
			info, err := store.Save("export.json", strings.NewReader("content"))
			if err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			ids[i] = info.ID
			time.Sleep(20 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}

		if files[0].ID != ids[2] {
			t.Error("Expected files to be sorted by time descending")
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("export.json", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		filePath := filepath.Join(store.uploadDir, info.ID)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Fatal("File should exist before deletion")
		}

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		if _, err := store.Get(info.ID); err == nil {
			t.Error("Expected error when getting deleted file")
		}
		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			t.Error("Physical file should be deleted")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("non-existent-id"); err == nil {
			t.Error("Expected error when deleting non-existent file")
		}
	})
}

func TestLocalStore_Rename(t *testing.T) {
	t.Run("renames existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("oldname.json", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		updated, err := store.Rename(info.ID, "newname.json")
		if err != nil {
			t.Fatalf("Failed to rename file: %v", err)
		}
		if updated.Name != "newname.json" {
			t.Errorf("Expected name 'newname.json', got %v", updated.Name)
		}

		retrieved, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get renamed file: %v", err)
		}
		if retrieved.Name != "newname.json" {
			t.Errorf("Rename not persisted, got %v", retrieved.Name)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Rename("non-existent-id", "name.json"); err == nil {
			t.Error("Expected error when renaming non-existent file")
		}
	})
}

func TestLocalStore_GetFilePath(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("export.json", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file path: %v", err)
	}
	if path != filepath.Join(store.uploadDir, info.ID) {
		t.Errorf("Unexpected path: %v", path)
	}

	if _, err := store.GetFilePath("non-existent-id"); err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLocalStore_ChunkedUpload(t *testing.T) {
	t.Run("assembles chunks in order", func(t *testing.T) {
		store := createTestStore(t)

		uploadID := "upload-123"
		chunks := [][]byte{[]byte(`[{"Logs": `), []byte(`[]`), []byte(`}]`)}
		for i, chunk := range chunks {
			if err := store.SaveChunkBytes(uploadID, i, chunk); err != nil {
				t.Fatalf("Failed to save chunk %d: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload(uploadID, "export.json", len(chunks))
		if err != nil {
			t.Fatalf("Failed to complete upload: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read assembled file: %v", err)
		}
		if string(data) != `[{"Logs": []}]` {
			t.Errorf("Unexpected assembled content: %s", data)
		}

		// Chunk directory is cleaned up
		if _, err := os.Stat(filepath.Join(store.uploadDir, "chunks", uploadID)); !os.IsNotExist(err) {
			t.Error("Expected chunk directory to be removed")
		}
	})

	t.Run("fails on missing chunk", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunkBytes("upload-456", 0, []byte("only chunk")); err != nil {
			t.Fatalf("Failed to save chunk: %v", err)
		}

		if _, err := store.CompleteChunkedUpload("upload-456", "export.json", 2); err == nil {
			t.Error("Expected error when a chunk is missing")
		}
	})

	t.Run("saves chunk from reader", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.SaveChunk("upload-789", 0, strings.NewReader("streamed")); err != nil {
			t.Fatalf("Failed to save chunk from reader: %v", err)
		}

		info, err := store.CompleteChunkedUpload("upload-789", "export.json", 1)
		if err != nil {
			t.Fatalf("Failed to complete upload: %v", err)
		}
		if info.Size != int64(len("streamed")) {
			t.Errorf("Expected size %d, got %d", len("streamed"), info.Size)
		}
	})
}

func TestLocalStore_IndexPersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	info, err := store.SaveBytes("export.json", []byte("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	// A fresh store over the same directory sees the file with its name.
	reopened, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	retrieved, err := reopened.Get(info.ID)
	if err != nil {
		t.Fatalf("Reopened store lost the file: %v", err)
	}
	if retrieved.Name != "export.json" {
		t.Errorf("Expected name 'export.json', got %v", retrieved.Name)
	}

	// Index entries whose bytes were removed externally are dropped.
	os.Remove(filepath.Join(dir, info.ID))
	again, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	if _, err := again.Get(info.ID); err == nil {
		t.Error("Expected missing backing file to be dropped from index")
	}
}

func TestLocalStore_RegisterFile(t *testing.T) {
	store := createTestStore(t)

	info, err := store.SaveBytes("export.json.gz", []byte("compressed"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	// Simulate an in-place decompression updating the size.
	info.Size = 4096
	store.RegisterFile(info)

	retrieved, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.Size != 4096 {
		t.Errorf("Expected updated size 4096, got %d", retrieved.Size)
	}
}
