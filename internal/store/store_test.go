package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tyemirov/homeboard/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "homeboard_test.db")
	opened, err := store.Open(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return opened
}

func TestOpenRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := store.Open(context.Background(), "mysql://localhost/homeboard")
	if !errors.Is(err, store.ErrUnsupportedDialect) {
		t.Fatalf("expected ErrUnsupportedDialect, got %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	count, countErr := repository.CountUsers(ctx)
	if countErr != nil {
		t.Fatalf("count users: %v", countErr)
	}
	if count != 0 {
		t.Fatalf("expected empty users table, got %d", count)
	}

	user := &store.User{Username: "dana", Name: "Dana", PasswordHash: "hash", Role: store.RoleAdmin}
	if createErr := repository.CreateUser(ctx, user); createErr != nil {
		t.Fatalf("create user: %v", createErr)
	}
	if user.ID == "" {
		t.Fatal("expected generated user id")
	}

	byUsername, lookupErr := repository.GetUserByUsername(ctx, "dana")
	if lookupErr != nil {
		t.Fatalf("get by username: %v", lookupErr)
	}
	if byUsername.ID != user.ID {
		t.Fatalf("username lookup returned %q, want %q", byUsername.ID, user.ID)
	}

	if updateErr := repository.UpdateUser(ctx, user.ID, map[string]any{"name": "Dana R", "track_allowance": true}); updateErr != nil {
		t.Fatalf("update user: %v", updateErr)
	}
	updated, getErr := repository.GetUser(ctx, user.ID)
	if getErr != nil {
		t.Fatalf("get user: %v", getErr)
	}
	if updated.Name != "Dana R" || !updated.TrackAllowance {
		t.Fatalf("update not applied: %+v", updated)
	}

	if deleteErr := repository.DeleteUser(ctx, user.ID); deleteErr != nil {
		t.Fatalf("delete user: %v", deleteErr)
	}
	if _, missingErr := repository.GetUser(ctx, user.ID); !errors.Is(missingErr, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", missingErr)
	}
	if deleteAgainErr := repository.DeleteUser(ctx, user.ID); !errors.Is(deleteAgainErr, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", deleteAgainErr)
	}
}

func TestAllowanceRunningBalance(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	user := &store.User{Username: "kid", Name: "Kid", PasswordHash: "hash", Role: store.RoleChild, TrackAllowance: true}
	if err := repository.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, firstErr := repository.AppendAllowance(ctx, user.ID, 500, "weekly allowance")
	if firstErr != nil {
		t.Fatalf("append first entry: %v", firstErr)
	}
	if first.BalanceCents != 500 {
		t.Fatalf("first balance = %d, want 500", first.BalanceCents)
	}

	second, secondErr := repository.AppendAllowance(ctx, user.ID, -150, "toy")
	if secondErr != nil {
		t.Fatalf("append second entry: %v", secondErr)
	}
	if second.BalanceCents != 350 {
		t.Fatalf("second balance = %d, want 350", second.BalanceCents)
	}

	entries, listErr := repository.ListAllowance(ctx, user.ID)
	if listErr != nil {
		t.Fatalf("list allowance: %v", listErr)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}

	balances, balancesErr := repository.AllowanceBalances(ctx)
	if balancesErr != nil {
		t.Fatalf("balances: %v", balancesErr)
	}
	if len(balances) != 1 {
		t.Fatalf("expected 1 tracked balance, got %d", len(balances))
	}
	if balances[0].UserID != user.ID || balances[0].BalanceCents != 350 {
		t.Fatalf("unexpected balance row: %+v", balances[0])
	}
}

func TestChoreListJoinsAssigneeName(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	assignee := &store.User{Username: "sam", Name: "Sam", PasswordHash: "hash", Role: store.RoleChild}
	if err := repository.CreateUser(ctx, assignee); err != nil {
		t.Fatalf("create user: %v", err)
	}
	chore := &store.Chore{Description: "dishes", AssignedTo: assignee.ID, RewardCents: 200}
	if err := repository.CreateChore(ctx, chore); err != nil {
		t.Fatalf("create chore: %v", err)
	}

	open, openErr := repository.ListOpenChores(ctx)
	if openErr != nil {
		t.Fatalf("list open chores: %v", openErr)
	}
	if len(open) != 1 || open[0].AssignedName != "Sam" {
		t.Fatalf("unexpected open chores: %+v", open)
	}

	if err := repository.UpdateChore(ctx, chore.ID, map[string]any{"completed": true}); err != nil {
		t.Fatalf("complete chore: %v", err)
	}
	open, openErr = repository.ListOpenChores(ctx)
	if openErr != nil {
		t.Fatalf("list open chores after completion: %v", openErr)
	}
	if len(open) != 0 {
		t.Fatalf("completed chore still listed as open: %+v", open)
	}

	all, allErr := repository.ListChores(ctx)
	if allErr != nil {
		t.Fatalf("list chores: %v", allErr)
	}
	if len(all) != 1 || !all[0].Completed {
		t.Fatalf("unexpected chore list: %+v", all)
	}
}

func TestDeleteCalendarDropsCachedRows(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	calendar := &store.Calendar{Name: "Family", URL: "https://calendar.google.com/calendar/ical/x/basic.ics"}
	if err := repository.CreateCalendar(ctx, calendar); err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	if calendar.Color != "primary" {
		t.Fatalf("default color = %q, want primary", calendar.Color)
	}

	fetchedAt := time.Now().UTC()
	if err := repository.SaveEvents(ctx, calendar.ID, `[]`, fetchedAt); err != nil {
		t.Fatalf("save events: %v", err)
	}
	if err := repository.SaveFeed(ctx, calendar.ID, "BEGIN:VCALENDAR\nEND:VCALENDAR", fetchedAt); err != nil {
		t.Fatalf("save feed: %v", err)
	}

	if err := repository.DeleteCalendar(ctx, calendar.ID); err != nil {
		t.Fatalf("delete calendar: %v", err)
	}
	if _, err := repository.LoadEvents(ctx, calendar.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected events row gone, got %v", err)
	}
	if _, err := repository.LoadFeed(ctx, calendar.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected feed row gone, got %v", err)
	}
}

func TestWeatherUpsertKeepsSingleRow(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	if _, err := repository.LoadWeather(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty cache, got %v", err)
	}

	first := time.Now().UTC().Truncate(time.Second)
	if err := repository.SaveWeather(ctx, `{"temp":70}`, first); err != nil {
		t.Fatalf("save weather: %v", err)
	}
	second := first.Add(time.Hour)
	if err := repository.SaveWeather(ctx, `{"temp":72}`, second); err != nil {
		t.Fatalf("save weather again: %v", err)
	}

	row, loadErr := repository.LoadWeather(ctx)
	if loadErr != nil {
		t.Fatalf("load weather: %v", loadErr)
	}
	if row.Data != `{"temp":72}` {
		t.Fatalf("weather data = %q, want latest payload", row.Data)
	}
	if !row.FetchedAt.Equal(second) {
		t.Fatalf("fetched_at = %v, want %v", row.FetchedAt, second)
	}
}

func TestDisplayTokenLookup(t *testing.T) {
	t.Parallel()
	repository := openTestStore(t)
	ctx := context.Background()

	token := &store.DisplayToken{Name: "Kitchen", Token: "opaque-display-token-value"}
	if err := repository.CreateDisplayToken(ctx, token); err != nil {
		t.Fatalf("create display token: %v", err)
	}

	exists, existsErr := repository.DisplayTokenExists(ctx, token.Token)
	if existsErr != nil {
		t.Fatalf("token lookup: %v", existsErr)
	}
	if !exists {
		t.Fatal("expected registered token to exist")
	}

	exists, existsErr = repository.DisplayTokenExists(ctx, "unknown")
	if existsErr != nil {
		t.Fatalf("unknown token lookup: %v", existsErr)
	}
	if exists {
		t.Fatal("unknown token reported as registered")
	}

	if err := repository.DeleteDisplayToken(ctx, token.ID); err != nil {
		t.Fatalf("delete display token: %v", err)
	}
	if err := repository.DeleteDisplayToken(ctx, token.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
