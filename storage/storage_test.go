package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func withStorage(t *testing.T, f func(*Storage)) {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "scripts.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	f(s)
}

func TestUpsertAndFetch(t *testing.T) {
	ctx := context.Background()
	withStorage(t, func(s *Storage) {
		if !s.Fresh() {
			t.Errorf("new database should be fresh")
		}
		name := faker.Word()
		code := faker.Sentence()
		if found, err := s.Exists(ctx, name); err != nil || found {
			t.Fatalf("got %v, %v, wanted false, nil", found, err)
		}
		created, err := s.Upsert(ctx, name, code)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Errorf("first upsert should create")
		}
		script, err := s.Fetch(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if script.Code != code || script.Created == 0 || script.Updated != 0 {
			t.Errorf("got %v", script)
		}
		if !script.UpdatedAt().IsZero() {
			t.Errorf("never updated script has update time %v", script.UpdatedAt())
		}
		if created, err = s.Upsert(ctx, name, "send('x')"); err != nil {
			t.Fatal(err)
		} else if created {
			t.Errorf("second upsert should not create")
		}
		updated, err := s.Fetch(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if updated.Code != "send('x')" || updated.Created != script.Created || updated.Updated < updated.Created {
			t.Errorf("got %v, original %v", updated, script)
		}
	})
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	withStorage(t, func(s *Storage) {
		for _, name := range []string{"c", "a", "b"} {
			if _, err := s.Upsert(ctx, name, "1"); err != nil {
				t.Fatal(err)
			}
		}
		names, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(names, []string{"a", "b", "c"}); diff != "" {
			t.Error(diff)
		}
		if err := s.Delete(ctx, "b"); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "b"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
		if _, err := s.Fetch(ctx, "b"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
		all, err := s.All(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got := []string{}
		for _, script := range all {
			got = append(got, script.Name)
		}
		if diff := cmp.Diff(got, []string{"a", "c"}); diff != "" {
			t.Error(diff)
		}
	})
}

func TestReopenIsNotFresh(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scripts.sqlite")
	s, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "x", "1"); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if s, err = New(ctx, path); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Fresh() {
		t.Errorf("reopened database should not be fresh")
	}
	if found, err := s.Exists(ctx, "x"); err != nil || !found {
		t.Errorf("got %v, %v, wanted true, nil", found, err)
	}
}
