package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sampleDocument(id string) *Document {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &Document{
		ID: id,
		Answers: []Answer{
			{ID: "a1", Text: "Use WAL mode for concurrent readers", Totems: []Totem{
				{Name: "sqlite", DecayModel: DecayMedium, CreatedAt: now, UpdatedAt: now},
			}},
		},
	}
}

// createDoc writes doc through a transaction, the way the coordinator does.
func createDoc(t *testing.T, s Store, doc *Document) {
	t.Helper()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, doc)
	})
	if err != nil {
		t.Fatalf("create %s: %v", doc.ID, err)
	}
}

// testStoreContract exercises the optimistic transaction contract every
// backend must honor.
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("create and read back", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-create"))

		got, err := s.Get(ctx, "doc-create")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Version != 1 {
			t.Errorf("Version = %d, want 1", got.Version)
		}
		if len(got.Answers) != 1 || got.Answers[0].Totems[0].Name != "sqlite" {
			t.Errorf("unexpected body: %+v", got)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be stamped on commit")
		}
	})

	t.Run("blind create of existing document conflicts", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-dup"))
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Set(ctx, sampleDocument("doc-dup"))
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("read modify write bumps version", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-rmw"))
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			doc, err := tx.Get(ctx, "doc-rmw")
			if err != nil {
				return err
			}
			doc.Answers[0].Text = "edited"
			return tx.Set(ctx, doc)
		})
		if err != nil {
			t.Fatalf("RunTransaction: %v", err)
		}

		got, _ := s.Get(ctx, "doc-rmw")
		if got.Version != 2 {
			t.Errorf("Version = %d, want 2", got.Version)
		}
		if got.Answers[0].Text != "edited" {
			t.Errorf("Text = %q, want edited", got.Answers[0].Text)
		}
	})

	t.Run("committed document is stamped in place", func(t *testing.T) {
		doc := sampleDocument("doc-stamp")
		createDoc(t, s, doc)
		created, _ := s.Get(ctx, "doc-stamp")
		if doc.Version != 1 || !doc.CreatedAt.Equal(created.CreatedAt) || !doc.UpdatedAt.Equal(created.UpdatedAt) {
			t.Errorf("created doc = v%d %v/%v, stored v%d %v/%v",
				doc.Version, doc.CreatedAt, doc.UpdatedAt, created.Version, created.CreatedAt, created.UpdatedAt)
		}

		var edited *Document
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			d, err := tx.Get(ctx, "doc-stamp")
			if err != nil {
				return err
			}
			d.Answers[0].Text = "edited"
			edited = d
			return tx.Set(ctx, d)
		})
		if err != nil {
			t.Fatalf("RunTransaction: %v", err)
		}
		got, _ := s.Get(ctx, "doc-stamp")
		if edited.Version != 2 || !edited.UpdatedAt.Equal(got.UpdatedAt) || !edited.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("edited doc = v%d updated %v, stored v%d updated %v",
				edited.Version, edited.UpdatedAt, got.Version, got.UpdatedAt)
		}
	})

	t.Run("concurrent write conflicts", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-race"))
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			doc, err := tx.Get(ctx, "doc-race")
			if err != nil {
				return err
			}

			// A competing writer commits between our read and our commit.
			if err := s.RunTransaction(ctx, func(ctx context.Context, tx2 Tx) error {
				other, err := tx2.Get(ctx, "doc-race")
				if err != nil {
					return err
				}
				other.Answers[0].Text = "winner"
				return tx2.Set(ctx, other)
			}); err != nil {
				t.Fatalf("competing transaction: %v", err)
			}

			doc.Answers[0].Text = "loser"
			return tx.Set(ctx, doc)
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}

		got, _ := s.Get(ctx, "doc-race")
		if got.Answers[0].Text != "winner" {
			t.Errorf("Text = %q, want winner (loser must not land)", got.Answers[0].Text)
		}
	})

	t.Run("callback error discards writes", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-abort"))
		boom := errors.New("boom")
		err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			doc, err := tx.Get(ctx, "doc-abort")
			if err != nil {
				return err
			}
			doc.Answers = nil
			if err := tx.Set(ctx, doc); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}

		got, _ := s.Get(ctx, "doc-abort")
		if len(got.Answers) != 1 || got.Version != 1 {
			t.Errorf("document changed after aborted transaction: %+v", got)
		}
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		createDoc(t, s, sampleDocument("doc-cancel"))
		cctx, cancel := context.WithCancel(ctx)
		err := s.RunTransaction(cctx, func(ctx context.Context, tx Tx) error {
			doc, err := tx.Get(ctx, "doc-cancel")
			if err != nil {
				return err
			}
			doc.Answers[0].Text = "should not land"
			cancel()
			return tx.Set(ctx, doc)
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}

		got, _ := s.Get(ctx, "doc-cancel")
		if got.Answers[0].Text == "should not land" {
			t.Error("write landed after cancellation")
		}
	})
}
