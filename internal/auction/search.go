package auction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrNoSearchSession = errors.New("no search in progress")
	ErrSearchCancelled = errors.New("search cancelled")
	ErrEmptySearch     = errors.New("search query is empty")
	ErrSearchTooShort  = errors.New("search query too short")
	ErrSearchTooLong   = errors.New("search query too long")
)

const (
	minSearchLen = 2
	maxSearchLen = 50
	debugTTL     = 24 * time.Hour
)

var cancelWords = []string{"cancel", "exit", "quit", "stop"}

// SearchSession is what a player was browsing when they asked to search.
type SearchSession struct {
	Sort     SortOrder
	Category Category
}

// BeginSearch starts waiting for playerID's search text. A second call
// replaces the first.
func (s *Service) BeginSearch(ctx context.Context, playerID string, sess SearchSession) {
	s.searches.Start(playerID, sess)
	s.logger.DebugContext(ctx, "search session started", slog.String("player_id", playerID))
}

// SearchPending reports whether playerID has a search waiting for input.
func (s *Service) SearchPending(playerID string) bool {
	return s.searches.Active(playerID)
}

// CompleteSearch turns input into the first page query of a search. A cancel
// word ends the session with ErrSearchCancelled. Empty, too short and too
// long input is rejected and the session stays open for another try.
func (s *Service) CompleteSearch(ctx context.Context, playerID, input string) (ListQuery, error) {
	sess, ok := s.searches.Get(playerID)
	if !ok {
		return ListQuery{}, ErrNoSearchSession
	}

	text := strings.TrimSpace(input)
	for _, w := range cancelWords {
		if strings.EqualFold(text, w) {
			s.searches.End(playerID)
			s.logger.InfoContext(ctx, "search cancelled", slog.String("player_id", playerID))
			return ListQuery{}, ErrSearchCancelled
		}
	}
	switch n := len([]rune(text)); {
	case n == 0:
		return ListQuery{}, ErrEmptySearch
	case n < minSearchLen:
		return ListQuery{}, ErrSearchTooShort
	case n > maxSearchLen:
		return ListQuery{}, ErrSearchTooLong
	}

	s.searches.End(playerID)
	s.logger.InfoContext(ctx, "search started",
		slog.String("player_id", playerID),
		slog.String("query", text),
	)
	return ListQuery{
		Filter: Filter{Category: sess.Category, Search: text},
		Sort:   sess.Sort,
		Page:   1,
	}, nil
}

// EndSearch drops playerID's search session, for example on disconnect.
func (s *Service) EndSearch(playerID string) bool {
	return s.searches.End(playerID)
}

// SetDebug turns debug logging of playerID's operations on or off.
func (s *Service) SetDebug(playerID string, on bool) {
	if on {
		s.debug.Start(playerID, struct{}{})
		return
	}
	s.debug.End(playerID)
}

// Debug reports whether playerID is in debug mode.
func (s *Service) Debug(playerID string) bool {
	return s.debug.Active(playerID)
}

func (s *Service) debugf(ctx context.Context, playerID, msg string, attrs ...any) {
	if !s.debug.Active(playerID) {
		return
	}
	s.logger.InfoContext(ctx, "debug: "+msg, append([]any{slog.String("player_id", playerID)}, attrs...)...)
}
