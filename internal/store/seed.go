package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/relay/internal/config"
)

// Seed upserts the workspaces declared in config and replaces their routes.
// Workspaces absent from config are left untouched.
func Seed(ctx context.Context, log *slog.Logger, s RoutingStore, workspaces []config.WorkspaceConfig) error {
	for _, ws := range workspaces {
		id := strings.TrimSpace(ws.ID)
		if id == "" {
			return fmt.Errorf("workspace id is required")
		}
		if err := s.UpsertWorkspace(ctx, Workspace{
			ID:       id,
			Platform: ws.Platform,
			BotToken: ws.BotToken,
		}); err != nil {
			return fmt.Errorf("seed workspace %s: %w", id, err)
		}
		entries := make([]RoutingEntry, 0, len(ws.Routes))
		for _, r := range ws.Routes {
			entries = append(entries, RoutingEntry{
				WorkspaceID: id,
				CommandName: r.Command,
				IsDefault:   r.Default,
				TargetBotID: strings.TrimSpace(r.BotID),
			})
		}
		if err := s.ReplaceRoutes(ctx, id, entries); err != nil {
			return fmt.Errorf("seed routes for %s: %w", id, err)
		}
		if log != nil {
			log.Info("workspace seeded", slog.String("workspace_id", id), slog.String("platform", ws.Platform), slog.Int("routes", len(entries)))
		}
	}
	return nil
}
