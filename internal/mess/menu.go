package mess

import (
	"context"
	"strings"
)

// Menu lists the available text menu items.
func (s *Service) Menu(ctx context.Context) ([]MenuItem, error) {
	return s.repo.ListMenu(ctx)
}

// AddMenuItem stores a new menu line; the title is required.
func (s *Service) AddMenuItem(ctx context.Context, title, description string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, ErrMissingFields
	}
	return s.repo.InsertMenuItem(ctx, title, strings.TrimSpace(description))
}

// DeleteMenuItem removes a menu line.
func (s *Service) DeleteMenuItem(ctx context.Context, id int64) (bool, error) {
	return s.repo.DeleteMenuItem(ctx, id)
}
