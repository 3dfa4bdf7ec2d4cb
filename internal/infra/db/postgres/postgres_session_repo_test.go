//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"mindspace/internal/domain"
	"mindspace/internal/domain/model"
)

func sealed(s string) model.Envelope {
	return model.Envelope{Ciphertext: []byte(s), Nonce: []byte("123456789012"), Tag: []byte("0123456789abcdef"), KeyVersion: 1}
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("update appends, labels once and round-trips", func(t *testing.T) {
		cleanup(t)
		s, _ := model.NewSession(uuid.NewString(), "owner", 7, now)
		title := sealed("title")
		s.Title = &title
		if err := repo.Create(ctx, nil, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := repo.Update(ctx, s.ID, now, func(s *model.Session) error {
			return s.Append(model.Message{ID: "01A", Role: model.RoleUser, Content: sealed("hi")}, now)
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		score := 4
		_, err = repo.Update(ctx, s.ID, now, func(s *model.Session) error {
			if _, err := s.Label("01A", model.Labels{Sentiment: model.SentimentNegative, Topics: []model.Topic{model.TopicStress}, WellnessScore: &score}, now); err != nil {
				return err
			}
			s.ApplyCrisis(model.CrisisMedium, now)
			return s.Append(model.Message{ID: "01B", Role: model.RoleAssistant, Content: sealed("reply")}, now)
		})
		if err != nil {
			t.Fatalf("label+reply: %v", err)
		}

		got, err := repo.FindByID(ctx, nil, s.ID, now)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if len(got.Messages) != 2 || got.Messages[0].Sentiment != model.SentimentNegative || !got.Messages[0].Labeled() {
			t.Fatalf("messages = %+v", got.Messages)
		}
		if !got.CrisisDetected || got.CrisisLevel != model.CrisisMedium {
			t.Fatalf("crisis state = %v %s", got.CrisisDetected, got.CrisisLevel)
		}
		if got.Analytics.TotalMessages != 2 || got.Analytics.WellnessScore == nil || *got.Analytics.WellnessScore != 4 {
			t.Fatalf("analytics = %+v", got.Analytics)
		}
		if got.Title == nil || string(got.Title.Ciphertext) != "title" {
			t.Fatalf("title = %+v", got.Title)
		}

		crisis, _ := repo.ListCrisis(ctx, nil, now, 10)
		if len(crisis) != 1 || crisis[0].ID != s.ID {
			t.Fatalf("ListCrisis = %v", crisis)
		}
	})

	t.Run("ill-formed id is not found", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, nil, "abc", now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("FindByID = %v", err)
		}
		_, err := repo.Update(ctx, "abc", now, func(*model.Session) error { return nil })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update = %v", err)
		}
		if err := repo.Delete(ctx, nil, "abc"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Delete = %v", err)
		}
	})

	t.Run("concurrent updates are serialised", func(t *testing.T) {
		cleanup(t)
		s, _ := model.NewSession(uuid.NewString(), "owner", 7, now)
		_ = repo.Create(ctx, nil, s)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Update(ctx, s.ID, now, func(s *model.Session) error {
					return s.Append(model.Message{ID: fmt.Sprintf("m%02d", i), Role: model.RoleUser, Content: sealed("x")}, now)
				})
				if err != nil {
					t.Errorf("Update: %v", err)
				}
			}(i)
		}
		wg.Wait()
		got, _ := repo.FindByID(ctx, nil, s.ID, now)
		if len(got.Messages) != 10 {
			t.Fatalf("messages = %d", len(got.Messages))
		}
	})

	t.Run("terminal sessions reject appends and nothing is written", func(t *testing.T) {
		cleanup(t)
		s, _ := model.NewSession(uuid.NewString(), "owner", 7, now)
		_ = repo.Create(ctx, nil, s)
		_, _ = repo.Update(ctx, s.ID, now, func(s *model.Session) error { return s.Transition(model.ActionEnd, now) })
		_, err := repo.Update(ctx, s.ID, now, func(s *model.Session) error {
			return s.Append(model.Message{ID: "late", Role: model.RoleUser, Content: sealed("x")}, now)
		})
		if !errors.Is(err, domain.ErrSessionClosed) {
			t.Fatalf("err = %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, s.ID, now)
		if got.EndedAt == nil || len(got.Messages) != 0 {
			t.Fatalf("session = %+v", got)
		}
	})

	t.Run("list by owner and purge expired with messages", func(t *testing.T) {
		cleanup(t)
		var ids []string
		for i := 0; i < 3; i++ {
			s, _ := model.NewSession(uuid.NewString(), "owner", 1, now.Add(time.Duration(i)*time.Minute))
			_ = s.Append(model.Message{ID: "m", Role: model.RoleUser, Content: sealed("x")}, s.StartedAt)
			_ = repo.Create(ctx, nil, s)
			ids = append(ids, s.ID)
		}
		list, err := repo.ListByOwner(ctx, nil, "owner", now, 0, 2)
		if err != nil || len(list) != 2 || list[0].ID != ids[2] {
			t.Fatalf("ListByOwner = %v %v", list, err)
		}
		later := now.Add(72 * time.Hour)
		if _, err := repo.FindByID(ctx, nil, ids[0], later); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expired session returned: %v", err)
		}
		purged, err := repo.DeleteExpired(ctx, later, 100)
		if err != nil || len(purged) != 3 {
			t.Fatalf("DeleteExpired = %v %v", purged, err)
		}
		var n int
		_ = testPool.QueryRow(ctx, `SELECT count(*) FROM session_messages`).Scan(&n)
		if n != 0 {
			t.Fatalf("%d orphan messages after purge", n)
		}
	})
}
