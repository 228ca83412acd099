package store

import "github.com/sentimentiq/backend/internal/domain"

// View is the top-level screen of the popup or side panel.
type View string

const (
	ViewHome View = "HOME"
	ViewAuth View = "AUTH"
)

// AuthMode selects the auth form.
type AuthMode string

const (
	AuthSignUp AuthMode = "SIGN_UP"
	AuthSignIn AuthMode = "SIGN_IN"
)

// Tab is the bottom navigation entry.
type Tab string

const (
	TabHome     Tab = "home"
	TabHistory  Tab = "history"
	TabSettings Tab = "settings"
)

// Theme is the color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Plan is the subscription tier.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// DefaultDailyLimit is the number of scans available on the free plan.
const DefaultDailyLimit = 3

// User is the signed-in account.
type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// State is the store's reactive state as seen by views.
type State struct {
	CurrentProduct    *domain.ProductMetadata `json:"currentProduct"`
	SentimentResult   *domain.SentimentResult `json:"sentimentResult"`
	IsLoading         bool                    `json:"isLoading"`
	Error             string                  `json:"error,omitempty"`
	IsAuthenticated   bool                    `json:"isAuthenticated"`
	History           []domain.HistoryEntry   `json:"history"`
	DailyLimit        int                     `json:"dailyLimit"`
	ScansUsed         int                     `json:"scansUsed"`
	Plan              Plan                    `json:"plan"`
	IsBottomSheetOpen bool                    `json:"isBottomSheetOpen"`
	CurrentView       View                    `json:"currentView"`
	AuthMode          AuthMode                `json:"authMode"`
	ActiveTab         Tab                     `json:"activeTab"`
	User              *User                   `json:"user"`
	Theme             Theme                   `json:"theme"`
	AutoAnalyze       bool                    `json:"autoAnalyze"`
	Notifications     bool                    `json:"notifications"`
}

func initialState() State {
	return State{
		History:       []domain.HistoryEntry{},
		DailyLimit:    DefaultDailyLimit,
		Plan:          PlanFree,
		CurrentView:   ViewHome,
		AuthMode:      AuthSignUp,
		ActiveTab:     TabHome,
		Theme:         ThemeSystem,
		Notifications: true,
	}
}

// clone returns a copy that shares nothing mutable with s.
func (s State) clone() State {
	c := s
	c.CurrentProduct = s.CurrentProduct.Clone()
	if s.SentimentResult != nil {
		r := *s.SentimentResult
		c.SentimentResult = &r
	}
	c.History = append([]domain.HistoryEntry(nil), s.History...)
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return c
}
