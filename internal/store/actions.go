package store

import (
	"context"

	"github.com/sentimentiq/backend/internal/domain"
)

// SetProduct replaces the current product locally and clears any error.
func (s *Store) SetProduct(product *domain.ProductMetadata) {
	p := product.Clone()
	s.update(func(st *State) {
		st.CurrentProduct = p
		st.Error = ""
	})
}

// SetResult records an analysis result, ends loading and opens the bottom sheet.
func (s *Store) SetResult(result *domain.SentimentResult) {
	s.update(func(st *State) {
		st.SentimentResult = result
		st.IsLoading = false
		st.IsBottomSheetOpen = true
	})
}

// SetLoading toggles loading and clears any error.
func (s *Store) SetLoading(loading bool) {
	s.update(func(st *State) {
		st.IsLoading = loading
		st.Error = ""
	})
}

// SetError records a user-visible error and ends loading.
func (s *Store) SetError(message string) {
	s.update(func(st *State) {
		st.Error = message
		st.IsLoading = false
	})
}

func (s *Store) SetBottomSheetOpen(open bool) {
	s.update(func(st *State) { st.IsBottomSheetOpen = open })
}

func (s *Store) SetView(view View) {
	s.update(func(st *State) { st.CurrentView = view })
}

func (s *Store) SetAuthMode(mode AuthMode) {
	s.update(func(st *State) { st.AuthMode = mode })
}

func (s *Store) SetActiveTab(tab Tab) {
	s.update(func(st *State) { st.ActiveTab = tab })
}

func (s *Store) SetTheme(theme Theme) {
	s.update(func(st *State) { st.Theme = theme })
}

func (s *Store) SetAutoAnalyze(enabled bool) {
	s.update(func(st *State) { st.AutoAnalyze = enabled })
}

func (s *Store) SetNotifications(enabled bool) {
	s.update(func(st *State) { st.Notifications = enabled })
}

// SignIn marks the store authenticated as user and returns to the home view.
func (s *Store) SignIn(user User) {
	s.update(func(st *State) {
		st.IsAuthenticated = true
		st.User = &user
		st.CurrentView = ViewHome
	})
}

// Logout drops the user and shows the auth view.
func (s *Store) Logout() {
	s.update(func(st *State) {
		st.IsAuthenticated = false
		st.User = nil
		st.CurrentView = ViewAuth
	})
}

// Reset clears the analysis flow. History, counters and settings are kept.
func (s *Store) Reset() {
	s.update(func(st *State) {
		st.CurrentProduct = nil
		st.SentimentResult = nil
		st.IsLoading = false
		st.Error = ""
		st.IsBottomSheetOpen = false
		st.CurrentView = ViewHome
	})
}

// IncrementScans bumps the scan counter and persists it. The in-memory
// counter advances even if the write fails.
func (s *Store) IncrementScans(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	st := s.update(func(st *State) { st.ScansUsed++ })
	return s.persist(ctx, domain.KeyScansUsed, st.ScansUsed)
}

// AddToHistory prepends entry, keeps the newest MaxHistoryEntries and persists.
func (s *Store) AddToHistory(ctx context.Context, entry domain.HistoryEntry) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	st := s.update(func(st *State) {
		st.History = domain.PrependHistory(st.History, entry)
	})
	return s.persist(ctx, domain.KeyHistory, st.History)
}

// ClearHistory empties the history and persists it.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.update(func(st *State) { st.History = []domain.HistoryEntry{} })
	return s.persist(ctx, domain.KeyHistory, []domain.HistoryEntry{})
}

// Analyze runs the backend analysis for the current product. On failure the
// error text is surfaced and loading reset; the previous result and history
// stay as they were.
func (s *Store) Analyze(ctx context.Context, analyzer domain.Analyzer, token string) (*domain.SentimentResult, error) {
	product := s.State().CurrentProduct
	if product == nil {
		s.SetError("No product detected on this page")
		return nil, domain.ErrNoProduct
	}

	s.SetLoading(true)
	result, err := analyzer.Analyze(ctx, *product, token)
	if err != nil {
		s.SetError(domain.UserMessage(err))
		return nil, err
	}

	s.SetResult(result)
	entry := domain.NewHistoryEntry(s.newID(), *product, *result, s.now())
	// Persistence failures are logged by persist and do not fail the analysis.
	_ = s.AddToHistory(ctx, entry)
	_ = s.IncrementScans(ctx)
	return result, nil
}
